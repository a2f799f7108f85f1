package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type TaxCodeRequest struct {
	Code          string `json:"code" binding:"required,max=20"`
	Rate          string `json:"rate" binding:"required"`           // fraction, e.g. "0.09"
	EffectiveFrom string `json:"effective_from" binding:"required"` // YYYY-MM-DD
	EffectiveTo   string `json:"effective_to"`                      // YYYY-MM-DD, empty = open-ended
	Description   string `json:"description"`
}

type TaxCodeResponse struct {
	ID            string  `json:"id"`
	Code          string  `json:"code"`
	Rate          string  `json:"rate"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

type ActiveTaxRateResponse struct {
	Code      string `json:"code"`
	Rate      string `json:"rate"`
	TaxCodeID string `json:"tax_code_id"`
	On        string `json:"on"`
}

// --- Interface ---

type TaxService interface {
	ListTaxCodes(ctx context.Context) ([]TaxCodeResponse, error)
	CreateTaxCode(ctx context.Context, req TaxCodeRequest) (TaxCodeResponse, error)
	UpdateTaxCode(ctx context.Context, id string, req TaxCodeRequest) (TaxCodeResponse, error)
	DeleteTaxCode(ctx context.Context, id string) error
	GetActiveRate(ctx context.Context, code, on string) (*ActiveTaxRateResponse, error)
}

type taxService struct {
	repo  repository.TaxCodeRepository
	audit AuditService
	tx    repository.TransactionManager
}

func NewTaxService(repo repository.TaxCodeRepository, audit AuditService, tx repository.TransactionManager) TaxService {
	return &taxService{repo: repo, audit: audit, tx: tx}
}

// --- Implementation ---

func (s *taxService) ListTaxCodes(ctx context.Context) ([]TaxCodeResponse, error) {
	p, _, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if !p.Can(rbac.ResourceTaxCodes, rbac.ActionRead) {
		return nil, apperr.Forbidden("missing permission tax_codes.read")
	}
	codes, err := s.repo.List(ctx, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tax codes: %w", err)
	}

	res := make([]TaxCodeResponse, 0, len(codes))
	for _, c := range codes {
		res = append(res, toTaxCodeResponse(c))
	}
	return res, nil
}

func (s *taxService) CreateTaxCode(ctx context.Context, req TaxCodeRequest) (TaxCodeResponse, error) {
	_, tenantID, err := s.requireManage(ctx)
	if err != nil {
		return TaxCodeResponse{}, err
	}
	code, rate, from, to, err := parseTaxCodeFields(req)
	if err != nil {
		return TaxCodeResponse{}, err
	}

	tc := model.TaxCode{
		TenantID:      tenantID,
		Code:          code,
		Rate:          rate,
		EffectiveFrom: from,
		EffectiveTo:   to,
		Description:   strings.TrimSpace(req.Description),
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkOverlap(txCtx, tenantID, code, from, to, nil); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, &tc); err != nil {
			return fmt.Errorf("failed to create tax code: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionCreate,
			EntityType: model.EntityTaxCode,
			EntityID:   tc.ID.String(),
			After:      toTaxCodeResponse(tc),
		})
	})
	if err != nil {
		return TaxCodeResponse{}, err
	}
	return toTaxCodeResponse(tc), nil
}

func (s *taxService) UpdateTaxCode(ctx context.Context, id string, req TaxCodeRequest) (TaxCodeResponse, error) {
	p, tenantID, err := s.requireManage(ctx)
	if err != nil {
		return TaxCodeResponse{}, err
	}
	codeID, err := parseID(id, "tax code id")
	if err != nil {
		return TaxCodeResponse{}, err
	}
	code, rate, from, to, err := parseTaxCodeFields(req)
	if err != nil {
		return TaxCodeResponse{}, err
	}

	var tc *model.TaxCode
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if tc, err = s.repo.FindByID(txCtx, codeID, tenancy.Scope(p, "tenant_id")); err != nil {
			return loadErr(err, "Tax code")
		}
		if err := s.checkOverlap(txCtx, tenantID, code, from, to, &tc.ID); err != nil {
			return err
		}
		before := toTaxCodeResponse(*tc)

		tc.Code = code
		tc.Rate = rate
		tc.EffectiveFrom = from
		tc.EffectiveTo = to
		tc.Description = strings.TrimSpace(req.Description)
		if err := s.repo.Update(txCtx, tc); err != nil {
			return fmt.Errorf("failed to update tax code: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionUpdate,
			EntityType: model.EntityTaxCode,
			EntityID:   tc.ID.String(),
			Before:     before,
			After:      toTaxCodeResponse(*tc),
		})
	})
	if err != nil {
		return TaxCodeResponse{}, err
	}
	return toTaxCodeResponse(*tc), nil
}

func (s *taxService) DeleteTaxCode(ctx context.Context, id string) error {
	p, _, err := s.requireManage(ctx)
	if err != nil {
		return err
	}
	codeID, err := parseID(id, "tax code id")
	if err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		tc, err := s.repo.FindByID(txCtx, codeID, tenancy.Scope(p, "tenant_id"))
		if err != nil {
			return loadErr(err, "Tax code")
		}
		if err := s.repo.Delete(txCtx, tc.ID); err != nil {
			return fmt.Errorf("failed to delete tax code: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionDelete,
			EntityType: model.EntityTaxCode,
			EntityID:   tc.ID.String(),
			Before:     toTaxCodeResponse(*tc),
		})
	})
}

// GetActiveRate finds the rate of a code in force on the given date (today when empty)
func (s *taxService) GetActiveRate(ctx context.Context, code, on string) (*ActiveTaxRateResponse, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if !p.Can(rbac.ResourceTaxCodes, rbac.ActionRead) {
		return nil, apperr.Forbidden("missing permission tax_codes.read")
	}
	target := time.Now()
	if d, err := parseOptionalDate(&on, "on"); err != nil {
		return nil, err
	} else if d != nil {
		target = *d
	}

	code = normalizeTaxCode(code)
	tc, err := s.repo.FindActiveByCode(ctx, tenantID, code, target)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Active tax rate")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active tax rate: %w", err)
	}
	return &ActiveTaxRateResponse{
		Code:      tc.Code,
		Rate:      tc.Rate.StringFixed(4),
		TaxCodeID: tc.ID.String(),
		On:        target.Format(dateLayout),
	}, nil
}

// --- Helpers ---

// requireManage allows tax code changes to holders of a tenant-wide tax_codes.manage grant
func (s *taxService) requireManage(ctx context.Context) (*tenancy.Principal, uuid.UUID, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if !p.Access(rbac.ResourceTaxCodes, rbac.ActionManage).All {
		return nil, uuid.Nil, apperr.Forbidden("tenant-wide tax_codes.manage permission required")
	}
	return p, tenantID, nil
}

func parseTaxCodeFields(req TaxCodeRequest) (string, decimal.Decimal, time.Time, *time.Time, error) {
	code := normalizeTaxCode(req.Code)
	if code == "" {
		return "", decimal.Zero, time.Time{}, nil, apperr.Validation("code is required")
	}
	rate, err := parseDecimal(req.Rate, "rate")
	if err != nil {
		return "", decimal.Zero, time.Time{}, nil, err
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return "", decimal.Zero, time.Time{}, nil, apperr.Validation("rate must be a fraction between 0 and 1")
	}
	from, err := parseDate(req.EffectiveFrom, "effective_from")
	if err != nil {
		return "", decimal.Zero, time.Time{}, nil, err
	}
	to, err := parseOptionalDate(&req.EffectiveTo, "effective_to")
	if err != nil {
		return "", decimal.Zero, time.Time{}, nil, err
	}
	if to != nil && to.Before(from) {
		return "", decimal.Zero, time.Time{}, nil, apperr.Validation("effective_to must not be before effective_from")
	}
	return code, rate, from, to, nil
}

func (s *taxService) checkOverlap(ctx context.Context, tenantID uuid.UUID, code string, from time.Time, to *time.Time, excludeID *uuid.UUID) error {
	count, err := s.repo.FindOverlapping(ctx, tenantID, code, from, to, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check overlap: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("a tax code '%s' already exists with overlapping effective dates", code)
	}
	return nil
}

func normalizeTaxCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func toTaxCodeResponse(t model.TaxCode) TaxCodeResponse {
	return TaxCodeResponse{
		ID:            t.ID.String(),
		Code:          t.Code,
		Rate:          t.Rate.StringFixed(4),
		EffectiveFrom: t.EffectiveFrom.Format(dateLayout),
		EffectiveTo:   formatDate(t.EffectiveTo),
		Description:   t.Description,
		CreatedAt:     formatTime(t.CreatedAt),
	}
}
