package service

import (
	"context"
	"fmt"
	"strings"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/reconcile"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateCompanyRequest struct {
	Name         string `json:"name" binding:"required,max=255"`
	UEN          string `json:"uen" binding:"required,uen"`
	HomeCurrency string `json:"home_currency" binding:"omitempty,currency"`
	Address      string `json:"address"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone" binding:"omitempty,max=50"`
}

type UpdateCompanyRequest struct {
	Name         *string `json:"name" binding:"omitempty,max=255"`
	UEN          *string `json:"uen" binding:"omitempty,uen"`
	HomeCurrency *string `json:"home_currency" binding:"omitempty,currency"`
	Address      *string `json:"address"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Phone        *string `json:"phone" binding:"omitempty,max=50"`
	IsActive     *bool   `json:"is_active"`
}

type CompanyListRequest struct {
	Search string
	Active *bool
	Page   int
	Limit  int
}

type CompanyResponse struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Name         string `json:"name"`
	UEN          string `json:"uen"`
	HomeCurrency string `json:"home_currency"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// --- Interface ---

type CompanyService interface {
	CreateCompany(ctx context.Context, req CreateCompanyRequest) (*CompanyResponse, error)
	GetCompany(ctx context.Context, id string) (*CompanyResponse, error)
	ListCompanies(ctx context.Context, req CompanyListRequest) ([]CompanyResponse, int64, error)
	UpdateCompany(ctx context.Context, id string, req UpdateCompanyRequest) (*CompanyResponse, error)
	DeleteCompany(ctx context.Context, id string) error
}

type companyService struct {
	repo  repository.CompanyRepository
	audit AuditService
	tx    repository.TransactionManager
}

func NewCompanyService(repo repository.CompanyRepository, audit AuditService, tx repository.TransactionManager) CompanyService {
	return &companyService{repo: repo, audit: audit, tx: tx}
}

// --- Implementation ---

func (s *companyService) CreateCompany(ctx context.Context, req CreateCompanyRequest) (*CompanyResponse, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	// a company-scoped grant cannot cover a company that does not exist yet
	if !p.Access(rbac.ResourceCompanies, rbac.ActionCreate).All {
		return nil, apperr.Forbidden("tenant-wide companies.create permission required")
	}

	company := &model.Company{
		TenantID:     tenantID,
		Name:         strings.TrimSpace(req.Name),
		UEN:          normalizeUEN(req.UEN),
		HomeCurrency: model.DefaultHomeCurrency,
		Address:      req.Address,
		Email:        req.Email,
		Phone:        req.Phone,
		IsActive:     true,
	}
	if req.HomeCurrency != "" {
		company.HomeCurrency = reconcile.NormalizeCurrency(req.HomeCurrency)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureUENFree(txCtx, company, nil); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, company); err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &company.ID,
			Action:     model.ActionCreate,
			EntityType: model.EntityCompany,
			EntityID:   company.ID.String(),
			After:      toCompanyResponse(company),
		})
	})
	if err != nil {
		return nil, err
	}
	return toCompanyResponse(company), nil
}

func (s *companyService) GetCompany(ctx context.Context, id string) (*CompanyResponse, error) {
	company, err := s.load(ctx, id, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return toCompanyResponse(company), nil
}

func (s *companyService) ListCompanies(ctx context.Context, req CompanyListRequest) ([]CompanyResponse, int64, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(req.Page, req.Limit)
	companies, total, err := s.repo.List(ctx, repository.CompanyFilter{
		Scopes: []repository.Scope{
			tenancy.Scope(p, "tenant_id"),
			p.Access(rbac.ResourceCompanies, rbac.ActionRead).Scope("id"),
		},
		Search: req.Search,
		Active: req.Active,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list companies: %w", err)
	}

	res := make([]CompanyResponse, 0, len(companies))
	for i := range companies {
		res = append(res, *toCompanyResponse(&companies[i]))
	}
	return res, total, nil
}

func (s *companyService) UpdateCompany(ctx context.Context, id string, req UpdateCompanyRequest) (*CompanyResponse, error) {
	var company *model.Company
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if company, err = s.load(txCtx, id, rbac.ActionUpdate); err != nil {
			return err
		}
		before := toCompanyResponse(company)

		if req.Name != nil {
			company.Name = strings.TrimSpace(*req.Name)
		}
		if req.UEN != nil {
			company.UEN = normalizeUEN(*req.UEN)
			if err := s.ensureUENFree(txCtx, company, &company.ID); err != nil {
				return err
			}
		}
		if req.HomeCurrency != nil {
			company.HomeCurrency = reconcile.NormalizeCurrency(*req.HomeCurrency)
		}
		if req.Address != nil {
			company.Address = *req.Address
		}
		if req.Email != nil {
			company.Email = *req.Email
		}
		if req.Phone != nil {
			company.Phone = *req.Phone
		}
		if req.IsActive != nil {
			company.IsActive = *req.IsActive
		}

		if err := s.repo.Update(txCtx, company); err != nil {
			return fmt.Errorf("failed to update company: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &company.ID,
			Action:     model.ActionUpdate,
			EntityType: model.EntityCompany,
			EntityID:   company.ID.String(),
			Before:     before,
			After:      toCompanyResponse(company),
		})
	})
	if err != nil {
		return nil, err
	}
	return toCompanyResponse(company), nil
}

func (s *companyService) DeleteCompany(ctx context.Context, id string) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		company, err := s.load(txCtx, id, rbac.ActionDelete)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, company.ID); err != nil {
			return fmt.Errorf("failed to delete company: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &company.ID,
			Action:     model.ActionDelete,
			EntityType: model.EntityCompany,
			EntityID:   company.ID.String(),
			Before:     toCompanyResponse(company),
		})
	})
}

// --- Helpers ---

// load fetches a company of the caller's tenant and checks the action against it
func (s *companyService) load(ctx context.Context, id, action string) (*model.Company, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	companyID, err := parseID(id, "company id")
	if err != nil {
		return nil, err
	}
	company, err := s.repo.FindByID(ctx, companyID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Company")
	}
	if !p.CanInCompany(rbac.ResourceCompanies, rbac.ActionRead, company.ID) {
		return nil, apperr.NotFound("Company")
	}
	if err := p.RequireCompany(rbac.ResourceCompanies, action, company.ID); err != nil {
		return nil, err
	}
	return company, nil
}

func (s *companyService) ensureUENFree(ctx context.Context, company *model.Company, excludeID *uuid.UUID) error {
	exists, err := s.repo.ExistsUEN(ctx, company.TenantID, company.UEN, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check uen: %w", err)
	}
	if exists {
		return apperr.Conflict("a company with UEN %s already exists in this tenant", company.UEN).
			WithDetails(map[string]string{"uen": company.UEN})
	}
	return nil
}

func normalizeUEN(uen string) string {
	return strings.ToUpper(strings.TrimSpace(uen))
}

func toCompanyResponse(c *model.Company) *CompanyResponse {
	return &CompanyResponse{
		ID:           c.ID.String(),
		TenantID:     c.TenantID.String(),
		Name:         c.Name,
		UEN:          c.UEN,
		HomeCurrency: c.HomeCurrency,
		Address:      c.Address,
		Email:        c.Email,
		Phone:        c.Phone,
		IsActive:     c.IsActive,
		CreatedAt:    formatTime(c.CreatedAt),
		UpdatedAt:    formatTime(c.UpdatedAt),
	}
}
