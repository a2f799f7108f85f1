package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type TaxHandler struct {
	taxService service.TaxService
}

func NewTaxHandler(taxService service.TaxService) *TaxHandler {
	return &TaxHandler{taxService: taxService}
}

func (h *TaxHandler) RegisterRoutes(router *gin.RouterGroup) {
	tax := router.Group("/api/tax-codes")
	{
		tax.GET("", middleware.RequirePermission(rbac.ResourceTaxCodes, rbac.ActionRead), h.ListTaxCodes)
		tax.GET("/active", middleware.RequirePermission(rbac.ResourceTaxCodes, rbac.ActionRead), h.GetActiveRate)
		tax.POST("", middleware.RequirePermission(rbac.ResourceTaxCodes, rbac.ActionManage), h.CreateTaxCode)
		tax.PUT("/:id", middleware.RequirePermission(rbac.ResourceTaxCodes, rbac.ActionManage), h.UpdateTaxCode)
		tax.DELETE("/:id", middleware.RequirePermission(rbac.ResourceTaxCodes, rbac.ActionManage), h.DeleteTaxCode)
	}
}

// ListTaxCodes returns every tax code of the tenant
// @Summary      List tax codes
// @Tags         tax-codes
// @Security     CookieAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/tax-codes [get]
func (h *TaxHandler) ListTaxCodes(c *gin.Context) {
	codes, err := h.taxService.ListTaxCodes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(codes))
}

// GetActiveRate resolves the rate of a code on a date (default today)
// @Summary      Active tax rate
// @Tags         tax-codes
// @Security     CookieAuth
// @Produce      json
// @Param        code  query  string  true   "Tax code"
// @Param        on    query  string  false  "Date (YYYY-MM-DD)"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/tax-codes/active [get]
func (h *TaxHandler) GetActiveRate(c *gin.Context) {
	rate, err := h.taxService.GetActiveRate(c.Request.Context(), c.Query("code"), c.Query("on"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(rate))
}

// @Summary      Create tax code
// @Tags         tax-codes
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.TaxCodeRequest  true  "Tax code payload"
// @Success      201  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/tax-codes [post]
func (h *TaxHandler) CreateTaxCode(c *gin.Context) {
	var req service.TaxCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	code, err := h.taxService.CreateTaxCode(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(code))
}

// @Summary      Update tax code
// @Tags         tax-codes
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true  "Tax code ID"
// @Param        payload  body  service.TaxCodeRequest  true  "Tax code payload"
// @Success      200  {object}  response.Response
// @Router       /api/tax-codes/{id} [put]
func (h *TaxHandler) UpdateTaxCode(c *gin.Context) {
	var req service.TaxCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	code, err := h.taxService.UpdateTaxCode(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(code))
}

// @Summary      Delete tax code
// @Tags         tax-codes
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Tax code ID"
// @Success      200  {object}  response.Response
// @Router       /api/tax-codes/{id} [delete]
func (h *TaxHandler) DeleteTaxCode(c *gin.Context) {
	if err := h.taxService.DeleteTaxCode(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Tax code deleted"}))
}
