// Package rbac resolves a user's role assignments into per-company access.
//
// An assignment without a company applies tenant-wide. A company-scoped
// assignment that mentions a resource replaces the tenant-wide decision for
// that resource in that company, whether it grants the action or not.
package rbac

import (
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Permission is a (resource, action) pair
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (p Permission) String() string { return p.Resource + "." + p.Action }

// Assignment is one role bound to a user, optionally scoped to a company
type Assignment struct {
	CompanyID   *uuid.UUID
	Permissions []Permission
}

func (a Assignment) mentions(resource string) bool {
	for _, p := range a.Permissions {
		if p.Resource == resource {
			return true
		}
	}
	return false
}

func (a Assignment) grants(resource, action string) bool {
	for _, p := range a.Permissions {
		if p.Resource == resource && p.Action == action {
			return true
		}
	}
	return false
}

// Access is the resolved company reach for one (resource, action).
// All with Denied lists exclusions; otherwise Allowed is the full allow-list.
type Access struct {
	All     bool
	Allowed []uuid.UUID
	Denied  []uuid.UUID
}

// Full grants every company
func Full() Access { return Access{All: true} }

// Resolve computes the access a set of assignments gives for resource/action
func Resolve(assignments []Assignment, resource, action string) Access {
	tenantWide := false
	scoped := make(map[uuid.UUID]bool) // company -> granted, only for companies whose scoped roles mention resource

	for _, a := range assignments {
		if a.CompanyID == nil {
			if a.grants(resource, action) {
				tenantWide = true
			}
			continue
		}
		if !a.mentions(resource) {
			continue
		}
		scoped[*a.CompanyID] = scoped[*a.CompanyID] || a.grants(resource, action)
	}

	acc := Access{All: tenantWide}
	for companyID, granted := range scoped {
		switch {
		case tenantWide && !granted:
			acc.Denied = append(acc.Denied, companyID)
		case !tenantWide && granted:
			acc.Allowed = append(acc.Allowed, companyID)
		}
	}
	sortIDs(acc.Allowed)
	sortIDs(acc.Denied)
	return acc
}

// Permits reports whether the access covers the company
func (a Access) Permits(companyID uuid.UUID) bool {
	if a.All {
		return !contains(a.Denied, companyID)
	}
	return contains(a.Allowed, companyID)
}

// None reports whether no company is reachable
func (a Access) None() bool {
	return !a.All && len(a.Allowed) == 0
}

// Any reports whether at least one company is reachable
func (a Access) Any() bool { return !a.None() }

// Scope restricts a query on column (e.g. "company_id") to the reachable companies
func (a Access) Scope(column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case a.All && len(a.Denied) == 0:
			return db
		case a.All:
			return db.Where(column+" NOT IN ?", a.Denied)
		case len(a.Allowed) == 0:
			return db.Where("1 = 0")
		default:
			return db.Where(column+" IN ?", a.Allowed)
		}
	}
}

// Codes flattens assignments into the distinct "resource.action" codes they grant anywhere
func Codes(assignments []Assignment) []string {
	seen := make(map[string]bool)
	codes := make([]string, 0)
	for _, a := range assignments {
		for _, p := range a.Permissions {
			c := p.String()
			if !seen[c] {
				seen[c] = true
				codes = append(codes, c)
			}
		}
	}
	sort.Strings(codes)
	return codes
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
