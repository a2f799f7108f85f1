package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role aggregates permissions within one tenant
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_roles_tenant_name" json:"tenant_id"`
	Name        string       `gorm:"type:varchar(50);not null;uniqueIndex:idx_roles_tenant_name" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"` // Prevent deletion of built-in roles
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// Permission is a global (resource, action) pair, e.g. ("documents", "approve")
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Resource    string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_permissions_resource_action" json:"resource"`
	Action      string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_permissions_resource_action" json:"action"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Code renders the permission as "resource.action"
func (p Permission) Code() string {
	return p.Resource + "." + p.Action
}

// UserRoleAssignment binds a user to a role, optionally limited to one company
type UserRoleAssignment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	RoleID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"role_id"`
	Role      *Role      `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"role,omitempty"`
	CompanyID *uuid.UUID `gorm:"type:uuid;index" json:"company_id"` // nil = tenant-wide
	CreatedAt time.Time  `json:"created_at"`
}

func (a *UserRoleAssignment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
