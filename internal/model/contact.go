package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactType enum constants
const (
	ContactTypeVendor   = "VENDOR"
	ContactTypeCustomer = "CUSTOMER"
	ContactTypeBoth     = "BOTH"
)

// Contact represents a vendor, customer, or both, owned by one company
type Contact struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CompanyID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Type          string         `gorm:"type:varchar(20);not null;index" json:"type"` // VENDOR, CUSTOMER, BOTH
	UEN           string         `gorm:"column:uen;type:varchar(20)" json:"uen"`
	ContactPerson string         `gorm:"type:varchar(255)" json:"contact_person"`
	Email         string         `gorm:"type:varchar(255)" json:"email"`
	Phone         string         `gorm:"type:varchar(50)" json:"phone"`
	Address       string         `gorm:"type:text" json:"address"`
	BankAccount   string         `gorm:"type:varchar(100)" json:"bank_account"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
