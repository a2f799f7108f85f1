package service

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/tenancy"
)

func TestTaxCodeOverlapAndActiveRate(t *testing.T) {
	f := newFixture(t)
	svc := NewTaxService(f.taxCodes, f.audit, f.tx)

	if _, err := svc.CreateTaxCode(f.ctx, TaxCodeRequest{Code: "sr", Rate: "0.08", EffectiveFrom: "2023-01-01", EffectiveTo: "2023-12-31"}); err != nil {
		t.Fatalf("Expected 2023 rate, got %v", err)
	}
	current, err := svc.CreateTaxCode(f.ctx, TaxCodeRequest{Code: "SR", Rate: "0.09", EffectiveFrom: "2024-01-01"})
	if err != nil {
		t.Fatalf("Expected 2024 rate, got %v", err)
	}
	if current.Code != "SR" {
		t.Errorf("Expected normalized code SR, got %s", current.Code)
	}

	tests := []struct {
		name string
		req  TaxCodeRequest
		want error
	}{
		{"overlaps open-ended", TaxCodeRequest{Code: "SR", Rate: "0.10", EffectiveFrom: "2025-01-01"}, apperr.ErrConflict},
		{"overlaps closed range", TaxCodeRequest{Code: "SR", Rate: "0.07", EffectiveFrom: "2022-06-01", EffectiveTo: "2023-02-01"}, apperr.ErrConflict},
		{"rate above one", TaxCodeRequest{Code: "ZR", Rate: "1.5", EffectiveFrom: "2024-01-01"}, apperr.ErrValidation},
		{"inverted range", TaxCodeRequest{Code: "ZR", Rate: "0", EffectiveFrom: "2024-01-01", EffectiveTo: "2023-01-01"}, apperr.ErrValidation},
		{"bad date", TaxCodeRequest{Code: "ZR", Rate: "0", EffectiveFrom: "01/01/2024"}, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateTaxCode(f.ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	rates := []struct {
		on   string
		want string
	}{
		{"2023-06-01", "0.0800"},
		{"2023-12-31", "0.0800"},
		{"2024-01-01", "0.0900"},
		{"2030-01-01", "0.0900"},
	}
	for _, r := range rates {
		got, err := svc.GetActiveRate(f.ctx, "sr", r.on)
		if err != nil {
			t.Errorf("Expected a rate on %s, got %v", r.on, err)
			continue
		}
		if got.Rate != r.want {
			t.Errorf("Expected rate %s on %s, got %s", r.want, r.on, got.Rate)
		}
	}
	if _, err := svc.GetActiveRate(f.ctx, "SR", "2020-01-01"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected no rate before 2023, got %v", err)
	}
}

func TestTaxCodeManageRequiresTenantWideGrant(t *testing.T) {
	f := newFixture(t)
	svc := NewTaxService(f.taxCodes, f.audit, f.tx)

	ctx := tenancy.WithPrincipal(context.Background(), &tenancy.Principal{
		UserID:     f.admin.ID,
		TenantID:   &f.tenantID,
		SystemRole: model.SystemRoleUser,
	})
	if _, err := svc.CreateTaxCode(ctx, TaxCodeRequest{Code: "SR", Rate: "0.09", EffectiveFrom: "2024-01-01"}); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Expected permission denied, got %v", err)
	}
	if _, err := svc.ListTaxCodes(ctx); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Expected permission denied on list, got %v", err)
	}
}
