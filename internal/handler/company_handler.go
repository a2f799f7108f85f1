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

type CompanyHandler struct {
	companyService service.CompanyService
	contactService service.ContactService
}

func NewCompanyHandler(companyService service.CompanyService, contactService service.ContactService) *CompanyHandler {
	return &CompanyHandler{companyService: companyService, contactService: contactService}
}

// RegisterRoutes binds companies and their nested contacts. Gin requires one
// wildcard name per segment, so the company id is :id on both.
func (h *CompanyHandler) RegisterRoutes(router *gin.RouterGroup) {
	companies := router.Group("/api/companies")
	{
		companies.GET("", middleware.RequirePermission(rbac.ResourceCompanies, rbac.ActionRead), h.ListCompanies)
		companies.POST("", middleware.RequirePermission(rbac.ResourceCompanies, rbac.ActionCreate), h.CreateCompany)
		companies.GET("/:id", middleware.RequirePermission(rbac.ResourceCompanies, rbac.ActionRead), h.GetCompany)
		companies.PUT("/:id", middleware.RequirePermission(rbac.ResourceCompanies, rbac.ActionUpdate), h.UpdateCompany)
		companies.DELETE("/:id", middleware.RequirePermission(rbac.ResourceCompanies, rbac.ActionDelete), h.DeleteCompany)

		readContacts := middleware.RequirePermission(rbac.ResourceContacts, rbac.ActionRead)
		manageContacts := middleware.RequirePermission(rbac.ResourceContacts, rbac.ActionManage)
		companies.GET("/:id/contacts", readContacts, h.ListContacts)
		companies.POST("/:id/contacts", manageContacts, h.CreateContact)
		companies.GET("/:id/contacts/:contactId", readContacts, h.GetContact)
		companies.PUT("/:id/contacts/:contactId", manageContacts, h.UpdateContact)
		companies.DELETE("/:id/contacts/:contactId", manageContacts, h.DeleteContact)
	}
}

// ListCompanies returns the companies the caller can read
// @Summary      List companies
// @Tags         companies
// @Security     CookieAuth
// @Produce      json
// @Param        page    query  int     false  "Page number (default: 1)"
// @Param        limit   query  int     false  "Items per page (default: 20)"
// @Param        search  query  string  false  "Search by name or UEN"
// @Param        active  query  bool    false  "Filter by active flag"
// @Success      200  {object}  response.Response
// @Router       /api/companies [get]
func (h *CompanyHandler) ListCompanies(c *gin.Context) {
	p := pagination.Parse(c)
	companies, total, err := h.companyService.ListCompanies(c.Request.Context(), service.CompanyListRequest{
		Search: c.Query("search"),
		Active: queryBool(c, "active"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(companies, total, p.Page, p.Limit))
}

// CreateCompany creates a company in the caller's tenant
// @Summary      Create company
// @Tags         companies
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateCompanyRequest  true  "Company payload"
// @Success      201  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/companies [post]
func (h *CompanyHandler) CreateCompany(c *gin.Context) {
	var req service.CreateCompanyRequest
	if !bindJSON(c, &req) {
		return
	}
	company, err := h.companyService.CreateCompany(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(company))
}

// @Summary      Get company
// @Tags         companies
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Company ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/companies/{id} [get]
func (h *CompanyHandler) GetCompany(c *gin.Context) {
	company, err := h.companyService.GetCompany(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(company))
}

// @Summary      Update company
// @Tags         companies
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                        true  "Company ID"
// @Param        payload  body  service.UpdateCompanyRequest  true  "Update payload"
// @Success      200  {object}  response.Response
// @Router       /api/companies/{id} [put]
func (h *CompanyHandler) UpdateCompany(c *gin.Context) {
	var req service.UpdateCompanyRequest
	if !bindJSON(c, &req) {
		return
	}
	company, err := h.companyService.UpdateCompany(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(company))
}

// @Summary      Delete company
// @Tags         companies
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Company ID"
// @Success      200  {object}  response.Response
// @Router       /api/companies/{id} [delete]
func (h *CompanyHandler) DeleteCompany(c *gin.Context) {
	if err := h.companyService.DeleteCompany(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Company deleted"}))
}

// ListContacts returns a company's vendors and customers
// @Summary      List contacts
// @Tags         contacts
// @Security     CookieAuth
// @Produce      json
// @Param        id      path   string  true   "Company ID"
// @Param        page    query  int     false  "Page number (default: 1)"
// @Param        limit   query  int     false  "Items per page (default: 20)"
// @Param        type    query  string  false  "VENDOR, CUSTOMER or BOTH"
// @Param        search  query  string  false  "Search by name, UEN or email"
// @Success      200  {object}  response.Response
// @Router       /api/companies/{id}/contacts [get]
func (h *CompanyHandler) ListContacts(c *gin.Context) {
	p := pagination.Parse(c)
	contacts, total, err := h.contactService.GetContacts(c.Request.Context(), c.Param("id"), c.Query("type"), c.Query("search"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(contacts, total, p.Page, p.Limit))
}

// @Summary      Create contact
// @Tags         contacts
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                        true  "Company ID"
// @Param        payload  body  service.CreateContactRequest  true  "Contact payload"
// @Success      201  {object}  response.Response
// @Router       /api/companies/{id}/contacts [post]
func (h *CompanyHandler) CreateContact(c *gin.Context) {
	var req service.CreateContactRequest
	if !bindJSON(c, &req) {
		return
	}
	contact, err := h.contactService.CreateContact(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(contact))
}

// @Summary      Get contact
// @Tags         contacts
// @Security     CookieAuth
// @Produce      json
// @Param        id         path  string  true  "Company ID"
// @Param        contactId  path  string  true  "Contact ID"
// @Success      200  {object}  response.Response
// @Router       /api/companies/{id}/contacts/{contactId} [get]
func (h *CompanyHandler) GetContact(c *gin.Context) {
	contact, err := h.contactService.GetContact(c.Request.Context(), c.Param("id"), c.Param("contactId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(contact))
}

// @Summary      Update contact
// @Tags         contacts
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id         path  string                        true  "Company ID"
// @Param        contactId  path  string                        true  "Contact ID"
// @Param        payload    body  service.UpdateContactRequest  true  "Update payload"
// @Success      200  {object}  response.Response
// @Router       /api/companies/{id}/contacts/{contactId} [put]
func (h *CompanyHandler) UpdateContact(c *gin.Context) {
	var req service.UpdateContactRequest
	if !bindJSON(c, &req) {
		return
	}
	contact, err := h.contactService.UpdateContact(c.Request.Context(), c.Param("id"), c.Param("contactId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(contact))
}

// @Summary      Delete contact
// @Tags         contacts
// @Security     CookieAuth
// @Produce      json
// @Param        id         path  string  true  "Company ID"
// @Param        contactId  path  string  true  "Contact ID"
// @Success      200  {object}  response.Response
// @Router       /api/companies/{id}/contacts/{contactId} [delete]
func (h *CompanyHandler) DeleteContact(c *gin.Context) {
	if err := h.contactService.DeleteContact(c.Request.Context(), c.Param("id"), c.Param("contactId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Contact deleted"}))
}
