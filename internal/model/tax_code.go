package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TaxCode stores a GST code's rate with temporal validity
type TaxCode struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Code          string          `gorm:"type:varchar(20);not null;index" json:"code"` // SR, ZR, ES, OS ...
	Rate          decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"`     // e.g. 0.09 = 9%
	EffectiveFrom time.Time       `gorm:"type:date;not null;index" json:"effective_from"`
	EffectiveTo   *time.Time      `gorm:"type:date;index" json:"effective_to"` // nullable = currently active
	Description   string          `gorm:"type:text" json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (t *TaxCode) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
