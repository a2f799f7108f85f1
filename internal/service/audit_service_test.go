package service

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
)

func TestAuditListIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	otherID, otherCtx := f.otherTenant(t)

	record := func(ctx context.Context, entityID string) {
		t.Helper()
		if err := f.audit.Record(ctx, AuditEntry{Action: model.ActionUpdate, EntityType: model.EntityCompany, EntityID: entityID}); err != nil {
			t.Fatalf("Expected audit row, got %v", err)
		}
	}
	record(f.ctx, "acme-1")
	record(f.ctx, "acme-2")
	record(otherCtx, "globex-1")

	rootCtx := tenancy.WithPrincipal(context.Background(), &tenancy.Principal{UserID: uuid.New(), SystemRole: model.SystemRoleSuperAdmin})

	tests := []struct {
		name       string
		ctx        context.Context
		req        AuditListRequest
		wantTenant *uuid.UUID
		wantCount  int
	}{
		{"tenant A sees only its rows", f.ctx, AuditListRequest{}, &f.tenantID, 2},
		{"tenant B sees only its rows", otherCtx, AuditListRequest{}, &otherID, 1},
		{"entity filter cannot cross tenants", f.ctx, AuditListRequest{EntityID: "globex-1"}, &f.tenantID, 0},
		{"super admin without tenant sees all", rootCtx, AuditListRequest{}, nil, 3},
		{"from date keeps recent rows", f.ctx, AuditListRequest{From: "2000-01-01"}, &f.tenantID, 2},
		{"to date excludes recent rows", f.ctx, AuditListRequest{To: "2000-01-02"}, &f.tenantID, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, total, err := f.audit.List(tt.ctx, tt.req)
			if err != nil {
				t.Fatalf("Expected list, got %v", err)
			}
			if int(total) != tt.wantCount || len(logs) != tt.wantCount {
				t.Fatalf("Expected %d rows, got %d (total %d)", tt.wantCount, len(logs), total)
			}
			if tt.wantTenant == nil {
				return
			}
			for _, l := range logs {
				if l.TenantID == nil || *l.TenantID != tt.wantTenant.String() {
					t.Errorf("Expected tenant %s, got %v", tt.wantTenant, l.TenantID)
				}
			}
		})
	}
}

func TestAuditListRejectsBadFilters(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  AuditListRequest
	}{
		{"bad from", AuditListRequest{From: "01/02/2024"}},
		{"bad to", AuditListRequest{To: "yesterday"}},
		{"bad user id", AuditListRequest{UserID: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := f.audit.List(f.ctx, tt.req); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	if _, _, err := f.audit.List(context.Background(), AuditListRequest{}); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("Expected authentication required without a principal, got %v", err)
	}
}
