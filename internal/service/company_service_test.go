package service

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/tenancy"
)

func TestCreateCompanyUENPerTenant(t *testing.T) {
	f := newFixture(t)
	svc := f.companyService()
	_, otherCtx := f.otherTenant(t)

	tests := []struct {
		name    string
		ctx     context.Context
		uen     string
		wantErr error
	}{
		{"same uen in same tenant", f.ctx, "201912345A", apperr.ErrConflict},
		{"same uen different case", f.ctx, " 201912345a ", apperr.ErrConflict},
		{"same uen in another tenant", otherCtx, "201912345A", nil},
		{"new uen in same tenant", f.ctx, "T08LL1234A", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.CreateCompany(tt.ctx, CreateCompanyRequest{Name: "Acme Holdings", UEN: tt.uen})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected company to be created, got %v", err)
			}
			if res.UEN != "201912345A" && res.UEN != "T08LL1234A" {
				t.Errorf("Expected normalized UEN, got %q", res.UEN)
			}
			if res.HomeCurrency != model.DefaultHomeCurrency {
				t.Errorf("Expected default currency %s, got %s", model.DefaultHomeCurrency, res.HomeCurrency)
			}
		})
	}

	var holders int64
	f.db.Model(&model.Company{}).Where("uen = ?", "201912345A").Count(&holders)
	if holders != 2 {
		t.Errorf("Expected 2 companies sharing the UEN across tenants, got %d", holders)
	}
}

func TestUpdateCompanyRejectsTakenUEN(t *testing.T) {
	f := newFixture(t)
	svc := f.companyService()

	second, err := svc.CreateCompany(f.ctx, CreateCompanyRequest{Name: "Acme Trading", UEN: "T08LL1234A"})
	if err != nil {
		t.Fatalf("Expected company, got %v", err)
	}
	_, err = svc.UpdateCompany(f.ctx, second.ID, UpdateCompanyRequest{UEN: strPtr(f.company.UEN)})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected conflict, got %v", err)
	}
	// keeping its own UEN is not a clash
	if _, err := svc.UpdateCompany(f.ctx, second.ID, UpdateCompanyRequest{UEN: strPtr("T08LL1234A")}); err != nil {
		t.Errorf("Expected update to succeed, got %v", err)
	}
}

func TestDeletedCompanyReleasesUEN(t *testing.T) {
	f := newFixture(t)
	svc := f.companyService()

	if err := svc.DeleteCompany(f.ctx, f.company.ID.String()); err != nil {
		t.Fatalf("Expected delete, got %v", err)
	}
	res, err := svc.CreateCompany(f.ctx, CreateCompanyRequest{Name: "Acme Pte Ltd (new)", UEN: f.company.UEN})
	if err != nil {
		t.Fatalf("Expected the UEN to be reusable after delete, got %v", err)
	}
	if res.ID == f.company.ID.String() {
		t.Error("Expected a new company row")
	}
	if _, err := svc.CreateCompany(f.ctx, CreateCompanyRequest{Name: "Acme again", UEN: f.company.UEN}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected conflict against the live company, got %v", err)
	}
}

func TestListCompaniesRespectsTenantAndScope(t *testing.T) {
	f := newFixture(t)
	svc := f.companyService()

	second, err := svc.CreateCompany(f.ctx, CreateCompanyRequest{Name: "Acme Trading", UEN: "T08LL1234A"})
	if err != nil {
		t.Fatalf("Expected company, got %v", err)
	}
	_, otherCtx := f.otherTenant(t)
	if _, err := svc.CreateCompany(otherCtx, CreateCompanyRequest{Name: "Globex", UEN: "200312345K"}); err != nil {
		t.Fatalf("Expected company, got %v", err)
	}

	scoped := tenancy.WithPrincipal(context.Background(), &tenancy.Principal{
		UserID:     f.admin.ID,
		TenantID:   &f.tenantID,
		SystemRole: model.SystemRoleUser,
		Assignments: []rbac.Assignment{{
			CompanyID:   &f.company.ID,
			Permissions: []rbac.Permission{{Resource: rbac.ResourceCompanies, Action: rbac.ActionRead}},
		}},
	})

	tests := []struct {
		name string
		ctx  context.Context
		want []string
	}{
		{"tenant admin sees own tenant", f.ctx, []string{f.company.ID.String(), second.ID}},
		{"company-scoped user sees allow-list", scoped, []string{f.company.ID.String()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := svc.ListCompanies(tt.ctx, CompanyListRequest{})
			if err != nil {
				t.Fatalf("Expected list, got %v", err)
			}
			if int(total) != len(tt.want) || len(got) != len(tt.want) {
				t.Fatalf("Expected %d companies, got %d (total %d)", len(tt.want), len(got), total)
			}
			seen := map[string]bool{}
			for _, c := range got {
				seen[c.ID] = true
			}
			for _, id := range tt.want {
				if !seen[id] {
					t.Errorf("Expected company %s in the list", id)
				}
			}
		})
	}

	if _, err := svc.GetCompany(scoped, second.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected a company outside the allow-list to be hidden, got %v", err)
	}
}
