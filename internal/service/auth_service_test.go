package service

import (
	"errors"
	"testing"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/config"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

func (f *fixture) authService() AuthService {
	return NewAuthService(repository.NewUserRepository(f.db), repository.NewTenantRepository(f.db), f.audit,
		NewPrincipalCache(time.Minute), config.AuthConfig{JWTSecret: "test-secret", JWTExpiresIn: time.Hour})
}

func (f *fixture) seedUser(t *testing.T, email, password, role string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := model.User{Email: email, Name: "Test", Password: string(hash), SystemRole: role, IsActive: true}
	if role != model.SystemRoleSuperAdmin {
		user.TenantID = &f.tenantID
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return user
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	svc := f.authService()
	user := f.seedUser(t, "clerk@acme.test", "s3cret-pass", model.SystemRoleUser)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid credentials", "clerk@acme.test", "s3cret-pass", nil},
		{"wrong password", "clerk@acme.test", "nope", apperr.ErrAuthenticationRequired},
		{"unknown email", "ghost@acme.test", "s3cret-pass", apperr.ErrAuthenticationRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Login(f.ctx, LoginRequest{Email: tt.email, Password: tt.password})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected login to succeed, got %v", err)
			}
			claims, err := svc.ParseToken(res.Token)
			if err != nil {
				t.Fatalf("Expected issued token to parse, got %v", err)
			}
			if claims.Subject != user.ID.String() {
				t.Errorf("Expected subject %s, got %s", user.ID, claims.Subject)
			}
			if claims.TenantID != f.tenantID.String() {
				t.Errorf("Expected tenant claim %s, got %s", f.tenantID, claims.TenantID)
			}
		})
	}

	if f.auditCount(t, model.ActionLogin) != 1 {
		t.Error("Expected one LOGIN audit row")
	}
	if _, err := svc.ParseToken("not-a-jwt"); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("Expected garbage token to be rejected, got %v", err)
	}
}

func TestLoginSuspendedTenant(t *testing.T) {
	f := newFixture(t)
	svc := f.authService()
	f.seedUser(t, "clerk@acme.test", "s3cret-pass", model.SystemRoleUser)

	if err := f.db.Model(&model.Tenant{}).Where("id = ?", f.tenantID).Update("status", model.TenantSuspended).Error; err != nil {
		t.Fatalf("Failed to suspend tenant: %v", err)
	}
	_, err := svc.Login(f.ctx, LoginRequest{Email: "clerk@acme.test", Password: "s3cret-pass"})
	if !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("Expected suspended tenant to block login, got %v", err)
	}
}

func TestLoadPrincipalActingTenant(t *testing.T) {
	f := newFixture(t)
	svc := f.authService()
	clerk := f.seedUser(t, "clerk@acme.test", "pw-clerk", model.SystemRoleUser)
	root := f.seedUser(t, "root@platform.test", "pw-root", model.SystemRoleSuperAdmin)

	clerkToken, _, err := svc.IssueToken(&clerk)
	if err != nil {
		t.Fatalf("Expected token, got %v", err)
	}
	clerkClaims, _ := svc.ParseToken(clerkToken)
	if _, err := svc.LoadPrincipal(f.ctx, clerkClaims, f.tenantID.String()); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Expected tenant switch to be denied for a user, got %v", err)
	}

	rootToken, _, err := svc.IssueToken(&root)
	if err != nil {
		t.Fatalf("Expected token, got %v", err)
	}
	rootClaims, _ := svc.ParseToken(rootToken)
	scoped, err := svc.LoadPrincipal(f.ctx, rootClaims, f.tenantID.String())
	if err != nil {
		t.Fatalf("Expected super admin to act in tenant, got %v", err)
	}
	if scoped.TenantID == nil || *scoped.TenantID != f.tenantID {
		t.Errorf("Expected acting tenant %s, got %v", f.tenantID, scoped.TenantID)
	}

	// the switch must not leak into later requests served from the cache
	plain, err := svc.LoadPrincipal(f.ctx, rootClaims, "")
	if err != nil {
		t.Fatalf("Expected principal, got %v", err)
	}
	if plain.TenantID != nil {
		t.Errorf("Expected no tenant without the header, got %v", plain.TenantID)
	}

	if _, err := svc.LoadPrincipal(f.ctx, rootClaims, "not-a-uuid"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected invalid tenant id to fail validation, got %v", err)
	}
}
