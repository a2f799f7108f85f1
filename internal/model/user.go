package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// System roles
const (
	SystemRoleSuperAdmin  = "SUPER_ADMIN"
	SystemRoleTenantAdmin = "TENANT_ADMIN"
	SystemRoleUser        = "USER"
)

// User is a login identity. SUPER_ADMIN users have no tenant.
type User struct {
	ID              uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        *uuid.UUID           `gorm:"type:uuid;index" json:"tenant_id"`
	Email           string               `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name            string               `gorm:"type:varchar(255);not null" json:"name"`
	Password        string               `gorm:"type:varchar(255);not null" json:"-"`
	SystemRole      string               `gorm:"type:varchar(20);not null;default:USER" json:"system_role"`
	IsActive        bool                 `gorm:"default:true" json:"is_active"`
	LastLoginAt     *time.Time           `json:"last_login_at"`
	RoleAssignments []UserRoleAssignment `gorm:"foreignKey:UserID" json:"role_assignments,omitempty"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt       `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// IsAdmin reports whether the user bypasses per-resource permission checks
func (u *User) IsAdmin() bool {
	return u.SystemRole == SystemRoleSuperAdmin || u.SystemRole == SystemRoleTenantAdmin
}
