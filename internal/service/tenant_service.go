package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"
	"backoffice/internal/workflow"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// --- DTOs ---

type TenantAdminRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type CreateTenantRequest struct {
	Name     string                 `json:"name" binding:"required,max=255"`
	Slug     string                 `json:"slug" binding:"required,max=100"`
	Settings map[string]interface{} `json:"settings"`
	Admin    *TenantAdminRequest    `json:"admin"`
}

type UpdateTenantRequest struct {
	Name     *string                `json:"name" binding:"omitempty,max=255"`
	Settings map[string]interface{} `json:"settings"`
}

type ChangeTenantStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING_SETUP ACTIVE SUSPENDED DEACTIVATED"`
}

type TenantResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Slug      string                 `json:"slug"`
	Status    string                 `json:"status"`
	Settings  map[string]interface{} `json:"settings"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
}

// --- Interface ---

// TenantService is the SUPER_ADMIN surface for managing tenants
type TenantService interface {
	CreateTenant(ctx context.Context, req CreateTenantRequest) (*TenantResponse, error)
	ListTenants(ctx context.Context, status, search string, page, limit int) ([]TenantResponse, int64, error)
	GetTenant(ctx context.Context, id string) (*TenantResponse, error)
	UpdateTenant(ctx context.Context, id string, req UpdateTenantRequest) (*TenantResponse, error)
	ChangeStatus(ctx context.Context, id string, req ChangeTenantStatusRequest) (*TenantResponse, error)
}

type tenantService struct {
	repo  repository.TenantRepository
	users repository.UserRepository
	roles RoleService
	audit AuditService
	tx    repository.TransactionManager
	cache *PrincipalCache
}

func NewTenantService(
	repo repository.TenantRepository,
	users repository.UserRepository,
	roles RoleService,
	audit AuditService,
	tx repository.TransactionManager,
	cache *PrincipalCache,
) TenantService {
	return &tenantService{repo: repo, users: users, roles: roles, audit: audit, tx: tx, cache: cache}
}

// --- Implementation ---

// CreateTenant creates the tenant in PENDING_SETUP, seeds its default roles and,
// when requested, its first TENANT_ADMIN.
func (s *tenantService) CreateTenant(ctx context.Context, req CreateTenantRequest) (*TenantResponse, error) {
	if err := requireSuperAdmin(ctx); err != nil {
		return nil, err
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, apperr.Validation("slug may only contain lowercase letters, digits and single dashes").
			WithDetails(map[string]string{"slug": "slug"})
	}

	tenant := &model.Tenant{
		Name:     strings.TrimSpace(req.Name),
		Slug:     slug,
		Status:   model.TenantPendingSetup,
		Settings: datatypes.JSONMap(req.Settings),
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.FindBySlug(txCtx, slug); err == nil {
			return apperr.Conflict("tenant slug '%s' already exists", slug)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check slug: %w", err)
		}
		if err := s.repo.Create(txCtx, tenant); err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}
		if err := s.roles.SeedDefaultRoles(txCtx, tenant.ID); err != nil {
			return err
		}

		if req.Admin != nil {
			email := normalizeEmail(req.Admin.Email)
			if _, err := s.users.GetByEmail(txCtx, email); err == nil {
				return apperr.Conflict("email already exists")
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to check email: %w", err)
			}
			hashed, err := hashPassword(req.Admin.Password)
			if err != nil {
				return err
			}
			admin := &model.User{
				TenantID:   &tenant.ID,
				Email:      email,
				Name:       strings.TrimSpace(req.Admin.Name),
				Password:   hashed,
				SystemRole: model.SystemRoleTenantAdmin,
				IsActive:   true,
			}
			if err := s.users.Create(txCtx, admin); err != nil {
				return fmt.Errorf("failed to create tenant admin: %w", err)
			}
		}

		return s.audit.Record(txCtx, AuditEntry{
			TenantID:   &tenant.ID,
			Action:     model.ActionCreate,
			EntityType: model.EntityTenant,
			EntityID:   tenant.ID.String(),
			After:      toTenantResponse(tenant),
		})
	})
	if err != nil {
		return nil, err
	}
	return toTenantResponse(tenant), nil
}

func (s *tenantService) ListTenants(ctx context.Context, status, search string, page, limit int) ([]TenantResponse, int64, error) {
	if err := requireSuperAdmin(ctx); err != nil {
		return nil, 0, err
	}
	page, limit = normalizePage(page, limit)
	tenants, total, err := s.repo.List(ctx, status, search, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	res := make([]TenantResponse, 0, len(tenants))
	for i := range tenants {
		res = append(res, *toTenantResponse(&tenants[i]))
	}
	return res, total, nil
}

func (s *tenantService) GetTenant(ctx context.Context, id string) (*TenantResponse, error) {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toTenantResponse(tenant), nil
}

func (s *tenantService) UpdateTenant(ctx context.Context, id string, req UpdateTenantRequest) (*TenantResponse, error) {
	if err := requireSuperAdmin(ctx); err != nil {
		return nil, err
	}
	var tenant *model.Tenant
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if tenant, err = s.load(txCtx, id); err != nil {
			return err
		}
		before := toTenantResponse(tenant)
		if req.Name != nil {
			tenant.Name = strings.TrimSpace(*req.Name)
		}
		if req.Settings != nil {
			tenant.Settings = datatypes.JSONMap(req.Settings)
		}
		if err := s.repo.Update(txCtx, tenant); err != nil {
			return fmt.Errorf("failed to update tenant: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			TenantID:   &tenant.ID,
			Action:     model.ActionUpdate,
			EntityType: model.EntityTenant,
			EntityID:   tenant.ID.String(),
			Before:     before,
			After:      toTenantResponse(tenant),
		})
	})
	if err != nil {
		return nil, err
	}
	return toTenantResponse(tenant), nil
}

func (s *tenantService) ChangeStatus(ctx context.Context, id string, req ChangeTenantStatusRequest) (*TenantResponse, error) {
	if err := requireSuperAdmin(ctx); err != nil {
		return nil, err
	}
	var tenant *model.Tenant
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if tenant, err = s.load(txCtx, id); err != nil {
			return err
		}
		from := tenant.Status
		if err := workflow.Tenant.Check(from, req.Status); err != nil {
			return err
		}
		tenant.Status = req.Status
		if err := s.repo.Update(txCtx, tenant); err != nil {
			return fmt.Errorf("failed to update tenant status: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			TenantID:   &tenant.ID,
			Action:     model.ActionStatusChanged,
			EntityType: model.EntityTenant,
			EntityID:   tenant.ID.String(),
			Before:     map[string]string{"status": from},
			After:      map[string]string{"status": tenant.Status},
		})
	})
	if err != nil {
		return nil, err
	}
	// cached principals of the tenant must re-check its status
	s.cache.Clear()
	return toTenantResponse(tenant), nil
}

// --- Helpers ---

func (s *tenantService) load(ctx context.Context, id string) (*model.Tenant, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := parseID(id, "tenant id")
	if err != nil {
		return nil, err
	}
	if !p.IsSuperAdmin() && (p.TenantID == nil || *p.TenantID != tenantID) {
		return nil, apperr.NotFound("Tenant")
	}
	tenant, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, loadErr(err, "Tenant")
	}
	return tenant, nil
}

func requireSuperAdmin(ctx context.Context) error {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	if !p.IsSuperAdmin() {
		return apperr.Forbidden("super admin access required")
	}
	return nil
}

func toTenantResponse(t *model.Tenant) *TenantResponse {
	settings := map[string]interface{}(t.Settings)
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return &TenantResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Slug:      t.Slug,
		Status:    t.Status,
		Settings:  settings,
		CreatedAt: formatTime(t.CreatedAt),
		UpdatedAt: formatTime(t.UpdatedAt),
	}
}
