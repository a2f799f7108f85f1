package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tag labels documents. CompanyID nil means the tag is shared across the tenant.
type Tag struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CompanyID *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	Name      string     `gorm:"type:varchar(100);not null" json:"name"`
	Color     string     `gorm:"type:varchar(20)" json:"color"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// DocumentTag is the join row between ProcessingDocument and Tag
type DocumentTag struct {
	DocumentID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"document_id"`
	TagID      uuid.UUID  `gorm:"type:uuid;primaryKey;index" json:"tag_id"`
	TaggedBy   *uuid.UUID `gorm:"type:uuid" json:"tagged_by"`
	CreatedAt  time.Time  `json:"created_at"`
}
