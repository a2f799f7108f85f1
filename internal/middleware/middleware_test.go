package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/config"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/internal/tenancy"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAuth accepts the single token "good" and returns a fixed principal
type stubAuth struct {
	service.AuthService
	principal    *tenancy.Principal
	actingTenant string
}

func (s *stubAuth) ParseToken(token string) (*service.Claims, error) {
	if token != "good" {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	return &service.Claims{SystemRole: s.principal.SystemRole}, nil
}

func (s *stubAuth) LoadPrincipal(_ context.Context, _ *service.Claims, actingTenant string) (*tenancy.Principal, error) {
	s.actingTenant = actingTenant
	return s.principal, nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body struct {
		Success bool                `json:"success"`
		Error   *response.ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON envelope, got %q", w.Body.String())
	}
	return response.Response{Success: body.Success, Error: body.Error}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"cookie", "from-cookie", "", "from-cookie"},
		{"cookie wins over header", "from-cookie", "Bearer from-header", "from-cookie"},
		{"bearer fallback", "", "Bearer from-header", "from-header"},
		{"case insensitive scheme", "", "bearer abc", "abc"},
		{"basic is ignored", "", "Basic dXNlcjpwYXNz", ""},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				c.Request.AddCookie(&http.Cookie{Name: service.AuthCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(c); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	tenantID := uuid.New()
	stub := &stubAuth{principal: &tenancy.Principal{
		UserID:     uuid.New(),
		TenantID:   &tenantID,
		SystemRole: model.SystemRoleUser,
		Assignments: []rbac.Assignment{
			{Permissions: []rbac.Permission{{Resource: rbac.ResourceDocuments, Action: rbac.ActionRead}}},
		},
	}}
	auth := NewAuth(stub, config.AuthConfig{})

	router := gin.New()
	router.Use(auth.RequireAuth())
	router.GET("/docs", RequirePermission(rbac.ResourceDocuments, rbac.ActionRead), func(c *gin.Context) {
		p, _ := tenancy.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, response.Success(p.UserID.String()))
	})
	router.DELETE("/docs", RequirePermission(rbac.ResourceDocuments, rbac.ActionDelete), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/tenants", RequireSuperAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name     string
		method   string
		path     string
		cookie   string
		bearer   string
		wantCode int
		wantErr  apperr.Code
	}{
		{"missing token", http.MethodGet, "/docs", "", "", http.StatusUnauthorized, apperr.CodeAuthenticationRequired},
		{"bad token", http.MethodGet, "/docs", "bad", "", http.StatusUnauthorized, apperr.CodeAuthenticationRequired},
		{"cookie", http.MethodGet, "/docs", "good", "", http.StatusOK, ""},
		{"bearer", http.MethodGet, "/docs", "", "good", http.StatusOK, ""},
		{"missing permission", http.MethodDelete, "/docs", "good", "", http.StatusForbidden, apperr.CodePermissionDenied},
		{"not super admin", http.MethodGet, "/tenants", "good", "", http.StatusForbidden, apperr.CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: service.AuthCookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantErr != "" {
				body := decode(t, w)
				if body.Success || body.Error == nil || body.Error.Code != string(tt.wantErr) {
					t.Errorf("Expected error code %s, got %s", tt.wantErr, w.Body.String())
				}
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	req.AddCookie(&http.Cookie{Name: service.AuthCookieName, Value: "good"})
	req.Header.Set(TenantHeader, "acting-tenant")
	router.ServeHTTP(httptest.NewRecorder(), req)
	if stub.actingTenant != "acting-tenant" {
		t.Errorf("Expected X-Tenant-ID to reach LoadPrincipal, got %q", stub.actingTenant)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("Expected hit %d to be allowed", i+1)
		}
	}
	ok, retry := l.Allow("a")
	if ok {
		t.Fatal("Expected third hit to be limited")
	}
	if retry != time.Minute {
		t.Errorf("Expected retry after 1m, got %v", retry)
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Error("Expected a separate key to have its own window")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("Expected a new window after the period")
	}

	now = now.Add(2 * time.Minute)
	l.evictExpired()
	if len(l.windows) != 0 {
		t.Errorf("Expected expired windows to be evicted, got %d", len(l.windows))
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	router := gin.New()
	router.GET("/login", l.Middleware("login"), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/login", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/login", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	if body := decode(t, second); body.Error == nil || body.Error.Code != string(apperr.CodeRateLimitExceeded) {
		t.Errorf("Expected RATE_LIMIT_EXCEEDED, got %s", second.Body.String())
	}
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  apperr.Code
		wantMsg  string
	}{
		{"not found", apperr.NotFound("Document"), http.StatusNotFound, apperr.CodeNotFound, ""},
		{"conflict", apperr.Conflict("stale lock version"), http.StatusConflict, apperr.CodeConflict, "stale lock version"},
		{"validation", apperr.Validation("bad input"), http.StatusBadRequest, apperr.CodeValidation, "bad input"},
		{"unknown error is hidden", errors.New("pq: connection reset"), http.StatusInternalServerError, apperr.CodeInternal, "internal server error"},
		{"unavailable", apperr.New(apperr.CodeServiceUnavailable, "storage down"), http.StatusServiceUnavailable, apperr.CodeServiceUnavailable, "storage down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(c, tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			body := decode(t, w)
			if body.Success || body.Error == nil || body.Error.Code != string(tt.wantErr) {
				t.Fatalf("Expected code %s, got %s", tt.wantErr, w.Body.String())
			}
			if tt.wantMsg != "" && body.Error.Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, body.Error.Message)
			}
		})
	}
}

func TestRecoveryAndRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestContext(), Recovery())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("Expected request id echoed, got %q", got)
	}
	if body := decode(t, w); body.Error == nil || body.Error.Code != string(apperr.CodeInternal) {
		t.Errorf("Expected INTERNAL_ERROR envelope, got %s", w.Body.String())
	}
}
