package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name          string   `json:"name" binding:"required,max=50"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required,max=50"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	TenantID    string               `json:"tenant_id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	SeedPermissions(ctx context.Context) error
	SeedDefaultRoles(ctx context.Context, tenantID uuid.UUID) error
}

type roleService struct {
	repo  repository.RoleRepository
	audit AuditService
	tx    repository.TransactionManager
	cache *PrincipalCache
}

func NewRoleService(repo repository.RoleRepository, audit AuditService, tx repository.TransactionManager, cache *PrincipalCache) RoleService {
	return &roleService{repo: repo, audit: audit, tx: tx, cache: cache}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.List(ctx, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	role, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	_, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs(req.PermissionIDs, "permission id")
	if err != nil {
		return nil, err
	}

	role := model.Role{
		TenantID:    tenantID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureNameFree(txCtx, tenantID, role.Name, nil); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, &role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		if len(permIDs) > 0 {
			perms, err := s.permissions(txCtx, permIDs)
			if err != nil {
				return err
			}
			if err := s.repo.ReplacePermissions(txCtx, &role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions: %w", err)
			}
			role.Permissions = perms
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionCreate,
			EntityType: model.EntityRole,
			EntityID:   role.ID.String(),
			After:      toRoleResponse(role),
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toRoleResponse(role)
	return &resp, nil
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	var role *model.Role
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if role, err = s.load(txCtx, id); err != nil {
			return err
		}
		before := toRoleResponse(*role)
		name := strings.TrimSpace(req.Name)
		if role.IsSystem && name != role.Name {
			return apperr.Validation("system roles cannot be renamed")
		}
		if err := s.ensureNameFree(txCtx, role.TenantID, name, &role.ID); err != nil {
			return err
		}
		role.Name = name
		role.Description = req.Description
		if err := s.repo.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionUpdate,
			EntityType: model.EntityRole,
			EntityID:   role.ID.String(),
			Before:     before,
			After:      toRoleResponse(*role),
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return apperr.Forbidden("cannot delete system role '%s'", role.Name)
		}
		inUse, err := s.repo.CountAssignments(txCtx, role.ID)
		if err != nil {
			return fmt.Errorf("failed to count role assignments: %w", err)
		}
		if inUse > 0 {
			return apperr.Conflict("role is assigned to %d user(s)", inUse)
		}
		if err := s.repo.Delete(txCtx, role); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionDelete,
			EntityType: model.EntityRole,
			EntityID:   role.ID.String(),
			Before:     toRoleResponse(*role),
		})
	})
	if err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	permIDs, err := parseIDs(req.PermissionIDs, "permission id")
	if err != nil {
		return nil, err
	}

	var role *model.Role
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if role, err = s.load(txCtx, roleID); err != nil {
			return err
		}
		before := toRoleResponse(*role)
		perms, err := s.permissions(txCtx, permIDs)
		if err != nil {
			return err
		}
		if err := s.repo.ReplacePermissions(txCtx, role, perms); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		role.Permissions = perms
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionUpdate,
			EntityType: model.EntityRole,
			EntityID:   role.ID.String(),
			Before:     before,
			After:      toRoleResponse(*role),
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.Clear()

	resp := toRoleResponse(*role)
	return &resp, nil
}

// SeedPermissions upserts every permission in the catalogue
func (s *roleService) SeedPermissions(ctx context.Context) error {
	for _, p := range rbac.Catalogue {
		perm := model.Permission{
			Resource:    p.Resource,
			Action:      p.Action,
			Description: permissionDescription(p),
		}
		if err := s.repo.FindOrCreatePermission(ctx, &perm); err != nil {
			return fmt.Errorf("failed to seed permission '%s': %w", p, err)
		}
	}
	return nil
}

// SeedDefaultRoles creates the built-in roles of a tenant if they are missing
// and resets their permissions to the defaults.
func (s *roleService) SeedDefaultRoles(ctx context.Context, tenantID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, def := range rbac.DefaultRoles {
			role, err := s.repo.FindByName(txCtx, tenantID, def.Name)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				role = &model.Role{
					TenantID:    tenantID,
					Name:        def.Name,
					Description: def.Description,
					IsSystem:    true,
				}
				if err := s.repo.Create(txCtx, role); err != nil {
					return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
				}
			} else if err != nil {
				return fmt.Errorf("failed to look up role '%s': %w", def.Name, err)
			}

			perms := make([]model.Permission, 0, len(def.Permissions))
			for _, p := range def.Permissions {
				perm := model.Permission{Resource: p.Resource, Action: p.Action, Description: permissionDescription(p)}
				if err := s.repo.FindOrCreatePermission(txCtx, &perm); err != nil {
					return fmt.Errorf("failed to seed permission '%s': %w", p, err)
				}
				perms = append(perms, perm)
			}
			if err := s.repo.ReplacePermissions(txCtx, role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
			}
		}
		return nil
	})
}

// --- Helpers ---

func (s *roleService) load(ctx context.Context, id string) (*model.Role, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	roleID, err := parseID(id, "role id")
	if err != nil {
		return nil, err
	}
	role, err := s.repo.FindByID(ctx, roleID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Role")
	}
	return role, nil
}

func (s *roleService) ensureNameFree(ctx context.Context, tenantID uuid.UUID, name string, excludeID *uuid.UUID) error {
	existing, err := s.repo.FindByName(ctx, tenantID, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	if excludeID != nil && existing.ID == *excludeID {
		return nil
	}
	return apperr.Conflict("role '%s' already exists", name)
}

// permissions loads the given ids and fails when any of them is unknown
func (s *roleService) permissions(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	perms, err := s.repo.FindPermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(perms) != len(ids) {
		return nil, apperr.Validation("unknown permission id")
	}
	return perms, nil
}

func parseIDs(raw []string, field string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, r := range raw {
		id, err := parseID(r, field)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func permissionDescription(p rbac.Permission) string {
	return strings.ToUpper(p.Action[:1]) + p.Action[1:] + " " + strings.ReplaceAll(p.Resource, "_", " ")
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		TenantID:    r.TenantID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID.String(),
		Code:        p.Code(),
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
	}
}
