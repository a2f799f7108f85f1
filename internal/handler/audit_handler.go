package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequirePermission(rbac.ResourceAuditLogs, rbac.ActionRead))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs returns a tenant-scoped page of audit rows, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Security     CookieAuth
// @Produce      json
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        limit        query  int     false  "Number of items per page (default 20)"
// @Param        entity_type  query  string  false  "Entity type"
// @Param        entity_id    query  string  false  "Entity ID"
// @Param        action       query  string  false  "Action"
// @Param        user_id      query  string  false  "Acting user ID"
// @Param        company_id   query  string  false  "Company ID"
// @Param        from         query  string  false  "From date (YYYY-MM-DD)"
// @Param        to           query  string  false  "To date (YYYY-MM-DD, inclusive)"
// @Success      200  {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	logs, total, err := h.auditService.List(c.Request.Context(), service.AuditListRequest{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Action:     c.Query("action"),
		UserID:     c.Query("user_id"),
		CompanyID:  c.Query("company_id"),
		From:       c.Query("from"),
		To:         c.Query("to"),
		Page:       p.Page,
		Limit:      p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(logs, total, p.Page, p.Limit))
}
