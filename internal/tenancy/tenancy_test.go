package tenancy

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/database"
	"backoffice/internal/model"
	"backoffice/internal/rbac"

	"github.com/google/uuid"
)

func TestScopeIsolatesTenants(t *testing.T) {
	db := database.NewTestDB(t)
	tenantA, tenantB := uuid.New(), uuid.New()
	companies := []model.Company{
		{TenantID: tenantA, Name: "A1", UEN: "201900001A"},
		{TenantID: tenantA, Name: "A2", UEN: "201900002B"},
		{TenantID: tenantB, Name: "B1", UEN: "201900001A"},
	}
	if err := db.Create(&companies).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name string
		p    *Principal
		want int
	}{
		{"tenant A user", &Principal{TenantID: &tenantA, SystemRole: model.SystemRoleUser}, 2},
		{"tenant B admin", &Principal{TenantID: &tenantB, SystemRole: model.SystemRoleTenantAdmin}, 1},
		{"super admin without tenant", &Principal{SystemRole: model.SystemRoleSuperAdmin}, 3},
		{"super admin acting in tenant B", &Principal{TenantID: &tenantB, SystemRole: model.SystemRoleSuperAdmin}, 1},
		{"user without tenant", &Principal{SystemRole: model.SystemRoleUser}, 0},
		{"no principal", nil, 0},
	}
	for _, tt := range tests {
		var got []model.Company
		if err := db.Scopes(Scope(tt.p, "tenant_id")).Find(&got).Error; err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(got) != tt.want {
			t.Errorf("%s: expected %d companies, got %d", tt.name, tt.want, len(got))
		}
		for _, c := range got {
			if tt.p != nil && tt.p.TenantID != nil && c.TenantID != *tt.p.TenantID {
				t.Errorf("%s: leaked company from tenant %s", tt.name, c.TenantID)
			}
		}
	}
}

func TestPrincipalAccess(t *testing.T) {
	companyA, companyB := uuid.New(), uuid.New()
	user := &Principal{
		SystemRole: model.SystemRoleUser,
		Assignments: []rbac.Assignment{
			{CompanyID: &companyA, Permissions: []rbac.Permission{{Resource: rbac.ResourceDocuments, Action: rbac.ActionRead}}},
		},
	}
	if !user.CanInCompany(rbac.ResourceDocuments, rbac.ActionRead, companyA) {
		t.Error("Expected read access to company A")
	}
	if user.CanInCompany(rbac.ResourceDocuments, rbac.ActionRead, companyB) {
		t.Error("Did not expect read access to company B")
	}
	if err := user.RequireCompany(rbac.ResourceDocuments, rbac.ActionApprove, companyA); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Expected permission denied, got %v", err)
	}

	admin := &Principal{SystemRole: model.SystemRoleTenantAdmin}
	if !admin.CanInCompany(rbac.ResourceDocuments, rbac.ActionApprove, companyB) {
		t.Error("Expected tenant admin to bypass role permissions")
	}
}

func TestRequireTenant(t *testing.T) {
	if _, _, err := RequireTenant(context.Background()); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("Expected authentication required, got %v", err)
	}

	ctx := WithPrincipal(context.Background(), &Principal{SystemRole: model.SystemRoleSuperAdmin})
	if _, _, err := RequireTenant(ctx); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error for super admin without tenant, got %v", err)
	}

	tenantID := uuid.New()
	ctx = WithPrincipal(context.Background(), &Principal{TenantID: &tenantID})
	if _, got, err := RequireTenant(ctx); err != nil || got != tenantID {
		t.Errorf("Expected tenant %s, got %s (%v)", tenantID, got, err)
	}
}
