package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/logger"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService  service.AuthService
	auth         *middleware.Auth
	loginLimiter *middleware.RateLimiter
}

func NewAuthHandler(authService service.AuthService, auth *middleware.Auth, loginLimiter *middleware.RateLimiter) *AuthHandler {
	return &AuthHandler{authService: authService, auth: auth, loginLimiter: loginLimiter}
}

// RegisterRoutes binds the session endpoints. Login is public and rate
// limited; the rest require a valid session.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/auth")
	{
		group.POST("/login", h.loginLimiter.Middleware("login"), h.Login)
		group.POST("/logout", h.auth.RequireAuth(), h.Logout)
		group.GET("/me", h.auth.RequireAuth(), h.Me)
	}
}

// Login authenticates a user and sets the session cookie
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.LoginRequest  true  "Credentials"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Failure      429  {object}  response.Response
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.auth.SetAuthCookie(c, result.Token, result.ExpiresAt)
	c.JSON(http.StatusOK, response.Success(result))
}

// Logout clears the session cookie
// @Summary      Logout
// @Tags         auth
// @Security     CookieAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context()); err != nil {
		logger.Warn(c.Request.Context(), "logout audit failed", "error", err)
	}
	h.auth.ClearAuthCookie(c)
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Logged out"}))
}

// Me returns the current user with resolved permissions
// @Summary      Current user
// @Tags         auth
// @Security     CookieAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	me, err := h.authService.Me(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(me))
}
