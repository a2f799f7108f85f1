package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant status constants
const (
	TenantPendingSetup = "PENDING_SETUP"
	TenantActive       = "ACTIVE"
	TenantSuspended    = "SUSPENDED"
	TenantDeactivated  = "DEACTIVATED"
)

// Tenant is the isolation boundary. Every tenant-scoped row carries its id.
type Tenant struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string            `gorm:"type:varchar(255);not null" json:"name"`
	Slug      string            `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug"`
	Status    string            `gorm:"type:varchar(20);not null;default:PENDING_SETUP;index" json:"status"`
	Settings  datatypes.JSONMap `json:"settings"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// CanAuthenticate reports whether users of the tenant may sign in
func (t *Tenant) CanAuthenticate() bool {
	return t.Status == TenantActive || t.Status == TenantPendingSetup
}
