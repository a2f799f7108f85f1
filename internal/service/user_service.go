package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Name       string `json:"name" binding:"required,max=255"`
	Password   string `json:"password" binding:"required,min=8"`
	SystemRole string `json:"system_role" binding:"omitempty,oneof=TENANT_ADMIN USER"`
}

type UpdateUserRequest struct {
	Email      *string `json:"email" binding:"omitempty,email"`
	Name       *string `json:"name" binding:"omitempty,max=255"`
	Password   *string `json:"password" binding:"omitempty,min=8"`
	SystemRole *string `json:"system_role" binding:"omitempty,oneof=TENANT_ADMIN USER"`
	IsActive   *bool   `json:"is_active"`
}

type AssignRoleRequest struct {
	RoleID    string  `json:"role_id" binding:"required,uuid"`
	CompanyID *string `json:"company_id" binding:"omitempty,uuid"`
}

type UserListRequest struct {
	Search string
	Role   string
	Page   int
	Limit  int
}

// UserResponse never exposes the password hash
type UserResponse struct {
	ID          string  `json:"id"`
	TenantID    *string `json:"tenant_id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	SystemRole  string  `json:"system_role"`
	IsActive    bool    `json:"is_active"`
	LastLoginAt *string `json:"last_login_at"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type RoleAssignmentResponse struct {
	ID        string  `json:"id"`
	RoleID    string  `json:"role_id"`
	RoleName  string  `json:"role_name"`
	CompanyID *string `json:"company_id"`
	CreatedAt string  `json:"created_at"`
}

// --- Interface ---

// UserService lets tenant admins manage the users of their tenant
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	GetUser(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, req UserListRequest) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
	ListAssignments(ctx context.Context, userID string) ([]RoleAssignmentResponse, error)
	AssignRole(ctx context.Context, userID string, req AssignRoleRequest) (*RoleAssignmentResponse, error)
	UnassignRole(ctx context.Context, userID, assignmentID string) error
	EnsureSuperAdmin(ctx context.Context, email, password string) error
}

type userService struct {
	repo      repository.UserRepository
	roles     repository.RoleRepository
	companies repository.CompanyRepository
	audit     AuditService
	tx        repository.TransactionManager
	cache     *PrincipalCache
}

// NewUserService returns a new instance of UserService
func NewUserService(
	repo repository.UserRepository,
	roles repository.RoleRepository,
	companies repository.CompanyRepository,
	audit AuditService,
	tx repository.TransactionManager,
	cache *PrincipalCache,
) UserService {
	return &userService{repo: repo, roles: roles, companies: companies, audit: audit, tx: tx, cache: cache}
}

// --- Implementation ---

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	role := req.SystemRole
	if role == "" {
		role = model.SystemRoleUser
	}
	if role == model.SystemRoleTenantAdmin && !p.IsAdmin() {
		return nil, apperr.Forbidden("only an administrator can create tenant admins")
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		TenantID:   &tenantID,
		Email:      normalizeEmail(req.Email),
		Name:       strings.TrimSpace(req.Name),
		Password:   hashed,
		SystemRole: role,
		IsActive:   true,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureEmailFree(txCtx, user.Email, nil); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionCreate,
			EntityType: model.EntityUser,
			EntityID:   user.ID.String(),
			After:      toUserResponse(user),
		})
	})
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func (s *userService) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, req UserListRequest) ([]UserResponse, int64, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(req.Page, req.Limit)
	users, total, err := s.repo.List(ctx, repository.UserFilter{
		Scopes: []repository.Scope{tenancy.Scope(p, "tenant_id")},
		Search: req.Search,
		Role:   req.Role,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *toUserResponse(&users[i]))
	}
	return res, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}

	var result *UserResponse
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if user.SystemRole == model.SystemRoleSuperAdmin && !p.IsSuperAdmin() {
			return apperr.Forbidden("cannot modify a super admin")
		}
		before := toUserResponse(user)

		if req.Email != nil {
			email := normalizeEmail(*req.Email)
			if email != user.Email {
				if err := s.ensureEmailFree(txCtx, email, &user.ID); err != nil {
					return err
				}
				user.Email = email
			}
		}
		if req.Name != nil {
			user.Name = strings.TrimSpace(*req.Name)
		}
		if req.Password != nil {
			hashed, err := hashPassword(*req.Password)
			if err != nil {
				return err
			}
			user.Password = hashed
		}
		if req.SystemRole != nil && *req.SystemRole != user.SystemRole {
			if !p.IsAdmin() {
				return apperr.Forbidden("only an administrator can change system roles")
			}
			if user.ID == p.UserID {
				return apperr.Validation("you cannot change your own system role")
			}
			user.SystemRole = *req.SystemRole
		}
		if req.IsActive != nil {
			if user.ID == p.UserID && !*req.IsActive {
				return apperr.Validation("you cannot deactivate your own account")
			}
			user.IsActive = *req.IsActive
		}

		if err := s.repo.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		result = toUserResponse(user)
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionUpdate,
			EntityType: model.EntityUser,
			EntityID:   user.ID.String(),
			Before:     before,
			After:      result,
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(uuid.MustParse(result.ID))
	return result, nil
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}

	var deleted uuid.UUID
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if user.ID == p.UserID {
			return apperr.Validation("you cannot delete your own account")
		}
		if user.SystemRole == model.SystemRoleSuperAdmin {
			return apperr.Forbidden("cannot delete a super admin")
		}
		if err := s.repo.Delete(txCtx, user.ID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		deleted = user.ID
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionDelete,
			EntityType: model.EntityUser,
			EntityID:   user.ID.String(),
			Before:     toUserResponse(user),
		})
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(deleted)
	return nil
}

func (s *userService) ListAssignments(ctx context.Context, userID string) ([]RoleAssignmentResponse, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	res := make([]RoleAssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		res = append(res, toRoleAssignmentResponse(a))
	}
	return res, nil
}

func (s *userService) AssignRole(ctx context.Context, userID string, req AssignRoleRequest) (*RoleAssignmentResponse, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	roleID, err := parseID(req.RoleID, "role_id")
	if err != nil {
		return nil, err
	}
	companyID, err := parseOptionalID(req.CompanyID, "company_id")
	if err != nil {
		return nil, err
	}

	var assignment model.UserRoleAssignment
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.load(txCtx, userID)
		if err != nil {
			return err
		}
		role, err := s.roles.FindByID(txCtx, roleID, tenancy.Scope(p, "tenant_id"))
		if err != nil {
			return loadErr(err, "Role")
		}
		if companyID != nil {
			if _, err := s.companies.FindByID(txCtx, *companyID, tenancy.Scope(p, "tenant_id")); err != nil {
				return loadErr(err, "Company")
			}
		}
		if _, err := s.repo.FindAssignment(txCtx, user.ID, role.ID, companyID); err == nil {
			return apperr.Conflict("role is already assigned")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check assignment: %w", err)
		}

		assignment = model.UserRoleAssignment{
			TenantID:  tenantID,
			UserID:    user.ID,
			RoleID:    role.ID,
			CompanyID: companyID,
		}
		if err := s.repo.CreateAssignment(txCtx, &assignment); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		assignment.Role = role
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  companyID,
			Action:     model.ActionAssign,
			EntityType: model.EntityUser,
			EntityID:   user.ID.String(),
			After:      toRoleAssignmentResponse(assignment),
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(assignment.UserID)
	res := toRoleAssignmentResponse(assignment)
	return &res, nil
}

func (s *userService) UnassignRole(ctx context.Context, userID, assignmentID string) error {
	aID, err := parseID(assignmentID, "assignment id")
	if err != nil {
		return err
	}

	var uid uuid.UUID
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.load(txCtx, userID)
		if err != nil {
			return err
		}
		uid = user.ID
		n, err := s.repo.DeleteAssignment(txCtx, user.ID, aID)
		if err != nil {
			return fmt.Errorf("failed to remove role assignment: %w", err)
		}
		if n == 0 {
			return apperr.NotFound("Role assignment")
		}
		return s.audit.Record(txCtx, AuditEntry{
			Action:     model.ActionRevoke,
			EntityType: model.EntityUser,
			EntityID:   user.ID.String(),
			Before:     map[string]string{"assignment_id": aID.String()},
		})
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(uid)
	return nil
}

// EnsureSuperAdmin creates the platform super admin on first start
func (s *userService) EnsureSuperAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up super admin: %w", err)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.repo.Create(ctx, &model.User{
		Email:      email,
		Name:       "Super Admin",
		Password:   hashed,
		SystemRole: model.SystemRoleSuperAdmin,
		IsActive:   true,
	})
}

// --- Helpers ---

func (s *userService) load(ctx context.Context, id string) (*model.User, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := parseID(id, "user id")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "User")
	}
	return user, nil
}

func (s *userService) ensureEmailFree(ctx context.Context, email string, excludeID *uuid.UUID) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if excludeID != nil && existing.ID == *excludeID {
		return nil
	}
	return apperr.Conflict("email already exists")
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID.String(),
		TenantID:    idString(user.TenantID),
		Email:       user.Email,
		Name:        user.Name,
		SystemRole:  user.SystemRole,
		IsActive:    user.IsActive,
		LastLoginAt: formatTimePtr(user.LastLoginAt),
		CreatedAt:   formatTime(user.CreatedAt),
		UpdatedAt:   formatTime(user.UpdatedAt),
	}
}

func toRoleAssignmentResponse(a model.UserRoleAssignment) RoleAssignmentResponse {
	res := RoleAssignmentResponse{
		ID:        a.ID.String(),
		RoleID:    a.RoleID.String(),
		CompanyID: idString(a.CompanyID),
		CreatedAt: formatTime(a.CreatedAt),
	}
	if a.Role != nil {
		res.RoleName = a.Role.Name
	}
	return res
}
