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

type ContractHandler struct {
	contractService service.ContractService
}

func NewContractHandler(contractService service.ContractService) *ContractHandler {
	return &ContractHandler{contractService: contractService}
}

func (h *ContractHandler) RegisterRoutes(router *gin.RouterGroup) {
	contracts := router.Group("/api/contract-services")
	{
		read := middleware.RequirePermission(rbac.ResourceContractServices, rbac.ActionRead)
		manage := middleware.RequirePermission(rbac.ResourceContractServices, rbac.ActionManage)

		contracts.GET("", read, h.ListContracts)
		contracts.POST("", manage, h.CreateContract)
		contracts.GET("/:id", read, h.GetContract)
		contracts.PUT("/:id", manage, h.UpdateContract)
		contracts.DELETE("/:id", manage, h.DeleteContract)
		contracts.PATCH("/:id/status", manage, h.ChangeStatus)
		contracts.POST("/:id/stop", manage, h.StopContract)

		contracts.GET("/:id/deadlines", read, h.ListDeadlines)
		contracts.POST("/:id/deadlines", manage, h.CreateDeadline)
		contracts.PUT("/:id/deadlines/:deadlineId", manage, h.UpdateDeadline)
		contracts.DELETE("/:id/deadlines/:deadlineId", manage, h.DeleteDeadline)
	}
}

// ListContracts returns contract services visible to the caller
// @Summary      List contract services
// @Tags         contract-services
// @Security     CookieAuth
// @Produce      json
// @Param        page        query  int     false  "Page number (default: 1)"
// @Param        limit       query  int     false  "Items per page (default: 20)"
// @Param        company_id  query  string  false  "Company ID"
// @Param        status      query  string  false  "PENDING, ACTIVE, COMPLETED or CANCELLED"
// @Param        search      query  string  false  "Search by name"
// @Success      200  {object}  response.Response
// @Router       /api/contract-services [get]
func (h *ContractHandler) ListContracts(c *gin.Context) {
	p := pagination.Parse(c)
	contracts, total, err := h.contractService.ListContracts(c.Request.Context(), service.ContractListRequest{
		CompanyID: c.Query("company_id"),
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		Page:      p.Page,
		Limit:     p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(contracts, total, p.Page, p.Limit))
}

// @Summary      Create contract service
// @Tags         contract-services
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateContractRequest  true  "Contract payload"
// @Success      201  {object}  response.Response
// @Router       /api/contract-services [post]
func (h *ContractHandler) CreateContract(c *gin.Context) {
	var req service.CreateContractRequest
	if !bindJSON(c, &req) {
		return
	}
	contract, err := h.contractService.CreateContract(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(contract))
}

// @Summary      Get contract service
// @Tags         contract-services
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Contract service ID"
// @Success      200  {object}  response.Response
// @Router       /api/contract-services/{id} [get]
func (h *ContractHandler) GetContract(c *gin.Context) {
	contract, err := h.contractService.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(contract))
}

// @Summary      Update contract service
// @Tags         contract-services
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true  "Contract service ID"
// @Param        payload  body  service.UpdateContractRequest  true  "Update payload"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/contract-services/{id} [put]
func (h *ContractHandler) UpdateContract(c *gin.Context) {
	var req service.UpdateContractRequest
	if !bindJSON(c, &req) {
		return
	}
	contract, err := h.contractService.UpdateContract(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(contract))
}

// @Summary      Delete contract service
// @Tags         contract-services
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Contract service ID"
// @Success      200  {object}  response.Response
// @Router       /api/contract-services/{id} [delete]
func (h *ContractHandler) DeleteContract(c *gin.Context) {
	if err := h.contractService.DeleteContract(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Contract service deleted"}))
}

// ChangeStatus moves a contract service along its transition table
// @Summary      Change contract service status
// @Tags         contract-services
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                               true  "Contract service ID"
// @Param        payload  body  service.ChangeContractStatusRequest  true  "Target status"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/contract-services/{id}/status [patch]
func (h *ContractHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeContractStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	contract, err := h.contractService.ChangeStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(contract))
}

// StopContract cancels a service and drops its pending deadlines after the end date
// @Summary      Stop contract service
// @Tags         contract-services
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                      true  "Contract service ID"
// @Param        payload  body  service.StopContractRequest  true  "End date and reason"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/contract-services/{id}/stop [post]
func (h *ContractHandler) StopContract(c *gin.Context) {
	var req service.StopContractRequest
	if !bindJSON(c, &req) {
		return
	}
	contract, err := h.contractService.StopContract(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(contract))
}

// @Summary      List deadlines
// @Tags         contract-services
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Contract service ID"
// @Success      200  {object}  response.Response
// @Router       /api/contract-services/{id}/deadlines [get]
func (h *ContractHandler) ListDeadlines(c *gin.Context) {
	deadlines, err := h.contractService.ListDeadlines(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(deadlines))
}

// @Summary      Create deadline
// @Tags         contract-services
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                   true  "Contract service ID"
// @Param        payload  body  service.DeadlineRequest  true  "Deadline payload"
// @Success      201  {object}  response.Response
// @Router       /api/contract-services/{id}/deadlines [post]
func (h *ContractHandler) CreateDeadline(c *gin.Context) {
	var req service.DeadlineRequest
	if !bindJSON(c, &req) {
		return
	}
	deadline, err := h.contractService.CreateDeadline(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(deadline))
}

// @Summary      Update deadline
// @Tags         contract-services
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id          path  string                         true  "Contract service ID"
// @Param        deadlineId  path  string                         true  "Deadline ID"
// @Param        payload     body  service.UpdateDeadlineRequest  true  "Update payload"
// @Success      200  {object}  response.Response
// @Router       /api/contract-services/{id}/deadlines/{deadlineId} [put]
func (h *ContractHandler) UpdateDeadline(c *gin.Context) {
	var req service.UpdateDeadlineRequest
	if !bindJSON(c, &req) {
		return
	}
	deadline, err := h.contractService.UpdateDeadline(c.Request.Context(), c.Param("id"), c.Param("deadlineId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(deadline))
}

// @Summary      Delete deadline
// @Tags         contract-services
// @Security     CookieAuth
// @Produce      json
// @Param        id          path  string  true  "Contract service ID"
// @Param        deadlineId  path  string  true  "Deadline ID"
// @Success      200  {object}  response.Response
// @Router       /api/contract-services/{id}/deadlines/{deadlineId} [delete]
func (h *ContractHandler) DeleteDeadline(c *gin.Context) {
	if err := h.contractService.DeleteDeadline(c.Request.Context(), c.Param("id"), c.Param("deadlineId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Deadline deleted"}))
}
