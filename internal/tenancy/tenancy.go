// Package tenancy carries the authenticated principal through request contexts
// and scopes queries to its tenant.
package tenancy

import (
	"context"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller
type Principal struct {
	UserID      uuid.UUID
	TenantID    *uuid.UUID // nil for a SUPER_ADMIN not acting inside a tenant
	Email       string
	SystemRole  string
	Assignments []rbac.Assignment
}

func (p *Principal) IsSuperAdmin() bool { return p.SystemRole == model.SystemRoleSuperAdmin }

// IsAdmin reports whether the principal bypasses role permissions
func (p *Principal) IsAdmin() bool {
	return p.SystemRole == model.SystemRoleSuperAdmin || p.SystemRole == model.SystemRoleTenantAdmin
}

// Access resolves which companies the principal reaches for resource/action
func (p *Principal) Access(resource, action string) rbac.Access {
	if p.IsAdmin() {
		return rbac.Full()
	}
	return rbac.Resolve(p.Assignments, resource, action)
}

// Can reports whether the principal holds the permission for at least one company
func (p *Principal) Can(resource, action string) bool {
	return p.Access(resource, action).Any()
}

// CanInCompany reports whether the permission covers the given company
func (p *Principal) CanInCompany(resource, action string, companyID uuid.UUID) bool {
	return p.Access(resource, action).Permits(companyID)
}

// RequireCompany returns PERMISSION_DENIED unless the permission covers the company
func (p *Principal) RequireCompany(resource, action string, companyID uuid.UUID) error {
	if !p.CanInCompany(resource, action, companyID) {
		return apperr.Forbidden("missing permission %s.%s for this company", resource, action)
	}
	return nil
}

// UserIDPtr is a convenience for nullable user columns
func (p *Principal) UserIDPtr() *uuid.UUID {
	id := p.UserID
	return &id
}

// WithPrincipal stores the principal on the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext returns the principal stored on the context, if any
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// Require returns the principal or AUTHENTICATION_REQUIRED
func Require(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return p, nil
}

// RequireTenant returns the principal and its tenant id. A principal without a
// tenant (a SUPER_ADMIN acting globally) gets a validation error.
func RequireTenant(ctx context.Context) (*Principal, uuid.UUID, error) {
	p, err := Require(ctx)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if p.TenantID == nil {
		return nil, uuid.Nil, apperr.Validation("a tenant must be selected for this operation")
	}
	return p, *p.TenantID, nil
}

// Scope filters by the principal's tenant on the given column. A SUPER_ADMIN
// without a tenant sees every tenant.
func Scope(p *Principal, column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p == nil {
			return db.Where("1 = 0")
		}
		if p.TenantID == nil {
			if p.IsSuperAdmin() {
				return db
			}
			return db.Where("1 = 0")
		}
		return db.Where(column+" = ?", *p.TenantID)
	}
}

// ScopeContext is Scope for the principal on ctx
func ScopeContext(ctx context.Context, column string) func(db *gorm.DB) *gorm.DB {
	p, _ := FromContext(ctx)
	return Scope(p, column)
}
