package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type TenantHandler struct {
	tenantService service.TenantService
}

func NewTenantHandler(tenantService service.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// RegisterRoutes binds tenant management, reserved for SUPER_ADMIN
func (h *TenantHandler) RegisterRoutes(router *gin.RouterGroup) {
	tenants := router.Group("/api/tenants")
	tenants.Use(middleware.RequireSuperAdmin())
	{
		tenants.GET("", h.ListTenants)
		tenants.POST("", h.CreateTenant)
		tenants.GET("/:id", h.GetTenant)
		tenants.PUT("/:id", h.UpdateTenant)
		tenants.PATCH("/:id/status", h.ChangeStatus)
	}
}

// @Summary      List tenants
// @Tags         tenants
// @Security     CookieAuth
// @Produce      json
// @Param        page    query  int     false  "Page number (default: 1)"
// @Param        limit   query  int     false  "Items per page (default: 20)"
// @Param        status  query  string  false  "Tenant status"
// @Param        search  query  string  false  "Search by name or slug"
// @Success      200  {object}  response.Response
// @Router       /api/tenants [get]
func (h *TenantHandler) ListTenants(c *gin.Context) {
	p := pagination.Parse(c)
	tenants, total, err := h.tenantService.ListTenants(c.Request.Context(), c.Query("status"), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(tenants, total, p.Page, p.Limit))
}

// CreateTenant creates a tenant, seeds its default roles and optionally its first admin
// @Summary      Create tenant
// @Tags         tenants
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateTenantRequest  true  "Tenant payload"
// @Success      201  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/tenants [post]
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	var req service.CreateTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	tenant, err := h.tenantService.CreateTenant(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(tenant))
}

// @Summary      Get tenant
// @Tags         tenants
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Tenant ID"
// @Success      200  {object}  response.Response
// @Router       /api/tenants/{id} [get]
func (h *TenantHandler) GetTenant(c *gin.Context) {
	tenant, err := h.tenantService.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(tenant))
}

// @Summary      Update tenant
// @Tags         tenants
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                       true  "Tenant ID"
// @Param        payload  body  service.UpdateTenantRequest  true  "Update payload"
// @Success      200  {object}  response.Response
// @Router       /api/tenants/{id} [put]
func (h *TenantHandler) UpdateTenant(c *gin.Context) {
	var req service.UpdateTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	tenant, err := h.tenantService.UpdateTenant(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(tenant))
}

// ChangeStatus applies a tenant status transition
// @Summary      Change tenant status
// @Tags         tenants
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                             true  "Tenant ID"
// @Param        payload  body  service.ChangeTenantStatusRequest  true  "Target status"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/tenants/{id}/status [patch]
func (h *TenantHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeTenantStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	tenant, err := h.tenantService.ChangeStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(tenant))
}
