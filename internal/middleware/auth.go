package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/config"
	"backoffice/internal/service"
	"backoffice/internal/tenancy"
	"backoffice/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TenantHeader lets a SUPER_ADMIN act inside one tenant
const TenantHeader = "X-Tenant-ID"

// Auth resolves the caller from the auth-token cookie or a Bearer header
type Auth struct {
	auth service.AuthService
	cfg  config.AuthConfig
}

func NewAuth(auth service.AuthService, cfg config.AuthConfig) *Auth {
	return &Auth{auth: auth, cfg: cfg}
}

// SetAuthCookie stores the session token as an HTTP-only cookie
func (a *Auth) SetAuthCookie(c *gin.Context, token string, expiresAt time.Time) {
	sameSite := http.SameSiteLaxMode
	if a.cfg.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetCookie(service.AuthCookieName, token, maxAge, "/", "", a.cfg.CookieSecure, true)
}

// ClearAuthCookie expires the session cookie
func (a *Auth) ClearAuthCookie(c *gin.Context) {
	sameSite := http.SameSiteLaxMode
	if a.cfg.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(service.AuthCookieName, "", -1, "/", "", a.cfg.CookieSecure, true)
}

// RequireAuth verifies the token, loads the principal and stores it on the
// request context. Requests without a valid token are rejected.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			abortWithError(c, apperr.Unauthenticated("authentication required"))
			return
		}
		claims, err := a.auth.ParseToken(token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		p, err := a.auth.LoadPrincipal(ctx, claims, c.GetHeader(TenantHeader))
		if err != nil {
			abortWithError(c, err)
			return
		}

		ctx = tenancy.WithPrincipal(ctx, p)
		ctx = withLogAttrs(ctx, p)
		c.Request = c.Request.WithContext(ctx)
		c.Set("userID", p.UserID.String())
		c.Set("systemRole", p.SystemRole)
		c.Next()
	}
}

// RequirePermission rejects callers holding the permission in no company.
// Services narrow the check to the company the request touches.
func RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := tenancy.Require(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !p.Can(resource, action) {
			abortWithError(c, apperr.Forbidden("missing permission %s.%s", resource, action))
			return
		}
		c.Next()
	}
}

// RequireSuperAdmin restricts a route group to platform administrators
func RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := tenancy.Require(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !p.IsSuperAdmin() {
			abortWithError(c, apperr.Forbidden("super admin access required"))
			return
		}
		c.Next()
	}
}

// TokenFromRequest reads the cookie first and falls back to Authorization: Bearer
func TokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(service.AuthCookieName); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func withLogAttrs(ctx context.Context, p *tenancy.Principal) context.Context {
	ctx = context.WithValue(ctx, logger.UserKey, p.UserID.String())
	if p.TenantID != nil {
		ctx = context.WithValue(ctx, logger.TenantKey, p.TenantID.String())
	}
	return ctx
}
