package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/config"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthCookieName is the HTTP-only cookie carrying the session token
const AuthCookieName = "auth-token"

// Claims are the JWT claims issued at login; Subject is the user id
type Claims struct {
	TenantID   string `json:"tenant_id,omitempty"`
	SystemRole string `json:"system_role"`
	jwt.RegisteredClaims
}

// --- DTOs ---

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token     string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      MeResponse `json:"user"`
}

type MeResponse struct {
	ID          string                   `json:"id"`
	Email       string                   `json:"email"`
	Name        string                   `json:"name"`
	SystemRole  string                   `json:"system_role"`
	TenantID    *string                  `json:"tenant_id"`
	Permissions []string                 `json:"permissions"`
	Assignments []RoleAssignmentResponse `json:"assignments"`
}

// --- Interface ---

type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*MeResponse, error)
	ParseToken(token string) (*Claims, error)
	IssueToken(user *model.User) (string, time.Time, error)
	LoadPrincipal(ctx context.Context, claims *Claims, actingTenant string) (*tenancy.Principal, error)
}

type authService struct {
	users   repository.UserRepository
	tenants repository.TenantRepository
	audit   AuditService
	cache   *PrincipalCache
	cfg     config.AuthConfig
}

func NewAuthService(users repository.UserRepository, tenants repository.TenantRepository, audit AuditService, cache *PrincipalCache, cfg config.AuthConfig) AuthService {
	return &authService{users: users, tenants: tenants, audit: audit, cache: cache, cfg: cfg}
}

// --- Implementation ---

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	invalid := apperr.Unauthenticated("invalid email or password")

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, invalid
	}
	if !user.IsActive {
		return nil, apperr.Unauthenticated("account is disabled")
	}
	if err := s.checkTenant(ctx, user.TenantID); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	s.cache.Invalidate(user.ID)

	principal, err := s.buildPrincipal(ctx, user)
	if err != nil {
		return nil, err
	}
	auditCtx := tenancy.WithPrincipal(ctx, principal)
	if err := s.audit.Record(auditCtx, AuditEntry{
		Action:     model.ActionLogin,
		EntityType: model.EntityUser,
		EntityID:   user.ID.String(),
	}); err != nil {
		return nil, err
	}

	me, err := s.meFor(ctx, user, principal)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: *me}, nil
}

func (s *authService) Logout(ctx context.Context) error {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	s.cache.Invalidate(p.UserID)
	return s.audit.Record(ctx, AuditEntry{
		Action:     model.ActionLogout,
		EntityType: model.EntityUser,
		EntityID:   p.UserID.String(),
	})
}

func (s *authService) Me(ctx context.Context) (*MeResponse, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, loadErr(err, "User")
	}
	return s.meFor(ctx, user, p)
}

// IssueToken signs an HS256 token valid for the configured expiry
func (s *authService) IssueToken(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.JWTExpiresIn)
	claims := Claims{
		SystemRole: user.SystemRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if user.TenantID != nil {
		claims.TenantID = user.TenantID.String()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *authService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	return claims, nil
}

// LoadPrincipal resolves the caller behind a verified token. A SUPER_ADMIN may
// act inside one tenant by naming it in actingTenant.
func (s *authService) LoadPrincipal(ctx context.Context, claims *Claims, actingTenant string) (*tenancy.Principal, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid token subject")
	}

	p, ok := s.cache.Get(userID)
	if !ok {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Unauthenticated("user no longer exists")
			}
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if !user.IsActive {
			return nil, apperr.Unauthenticated("account is disabled")
		}
		if err := s.checkTenant(ctx, user.TenantID); err != nil {
			return nil, err
		}
		if p, err = s.buildPrincipal(ctx, user); err != nil {
			return nil, err
		}
		s.cache.Store(p)
	}

	if actingTenant = strings.TrimSpace(actingTenant); actingTenant != "" {
		if !p.IsSuperAdmin() {
			return nil, apperr.Forbidden("only a super admin may switch tenant")
		}
		tenantID, err := parseID(actingTenant, "tenant id")
		if err != nil {
			return nil, err
		}
		if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
			return nil, loadErr(err, "Tenant")
		}
		p.TenantID = &tenantID
	}
	return p, nil
}

// --- Helpers ---

func (s *authService) checkTenant(ctx context.Context, tenantID *uuid.UUID) error {
	if tenantID == nil {
		return nil
	}
	tenant, err := s.tenants.FindByID(ctx, *tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Unauthenticated("tenant no longer exists")
		}
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if !tenant.CanAuthenticate() {
		return apperr.Unauthenticated("tenant is %s", strings.ToLower(tenant.Status))
	}
	return nil
}

func (s *authService) buildPrincipal(ctx context.Context, user *model.User) (*tenancy.Principal, error) {
	p := &tenancy.Principal{
		UserID:     user.ID,
		TenantID:   user.TenantID,
		Email:      user.Email,
		SystemRole: user.SystemRole,
	}
	if user.IsAdmin() {
		return p, nil
	}
	assignments, err := s.users.ListAssignments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role assignments: %w", err)
	}
	p.Assignments = toRBACAssignments(assignments)
	return p, nil
}

func (s *authService) meFor(ctx context.Context, user *model.User, p *tenancy.Principal) (*MeResponse, error) {
	assignments, err := s.users.ListAssignments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role assignments: %w", err)
	}

	var permissions []string
	if p.IsAdmin() {
		permissions = make([]string, 0, len(rbac.Catalogue))
		for _, perm := range rbac.Catalogue {
			permissions = append(permissions, perm.String())
		}
	} else {
		permissions = rbac.Codes(p.Assignments)
	}

	res := &MeResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		Name:        user.Name,
		SystemRole:  user.SystemRole,
		TenantID:    idString(p.TenantID),
		Permissions: permissions,
		Assignments: make([]RoleAssignmentResponse, 0, len(assignments)),
	}
	for _, a := range assignments {
		res.Assignments = append(res.Assignments, toRoleAssignmentResponse(a))
	}
	return res, nil
}

func toRBACAssignments(assignments []model.UserRoleAssignment) []rbac.Assignment {
	out := make([]rbac.Assignment, 0, len(assignments))
	for _, a := range assignments {
		ra := rbac.Assignment{CompanyID: a.CompanyID}
		if a.Role != nil {
			for _, perm := range a.Role.Permissions {
				ra.Permissions = append(ra.Permissions, rbac.Permission{Resource: perm.Resource, Action: perm.Action})
			}
		}
		out = append(out, ra)
	}
	return out
}
