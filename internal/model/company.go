package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultHomeCurrency = "SGD"

// Company is a legal entity owned by a tenant. The UEN is unique among a
// tenant's live companies only.
type Company struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_companies_tenant_uen,where:deleted_at IS NULL" json:"tenant_id"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	UEN          string         `gorm:"column:uen;type:varchar(20);not null;uniqueIndex:idx_companies_tenant_uen,where:deleted_at IS NULL" json:"uen"`
	HomeCurrency string         `gorm:"type:varchar(3);not null;default:SGD" json:"home_currency"`
	Address      string         `gorm:"type:text" json:"address"`
	Email        string         `gorm:"type:varchar(255)" json:"email"`
	Phone        string         `gorm:"type:varchar(50)" json:"phone"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	if c.HomeCurrency == "" {
		c.HomeCurrency = DefaultHomeCurrency
	}
	return nil
}
