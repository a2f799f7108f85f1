package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type TagHandler struct {
	tagService service.TagService
}

func NewTagHandler(tagService service.TagService) *TagHandler {
	return &TagHandler{tagService: tagService}
}

func (h *TagHandler) RegisterRoutes(router *gin.RouterGroup) {
	tags := router.Group("/api/tags")
	{
		tags.GET("", middleware.RequirePermission(rbac.ResourceTags, rbac.ActionRead), h.ListTags)
		tags.POST("", middleware.RequirePermission(rbac.ResourceTags, rbac.ActionManage), h.CreateTag)
		tags.PUT("/:id", middleware.RequirePermission(rbac.ResourceTags, rbac.ActionManage), h.UpdateTag)
		tags.DELETE("/:id", middleware.RequirePermission(rbac.ResourceTags, rbac.ActionManage), h.DeleteTag)
	}
}

// ListTags returns the shared tags, plus one company's tags when company_id is set
// @Summary      List tags
// @Tags         tags
// @Security     CookieAuth
// @Produce      json
// @Param        company_id  query  string  false  "Company ID"
// @Success      200  {object}  response.Response
// @Router       /api/tags [get]
func (h *TagHandler) ListTags(c *gin.Context) {
	tags, err := h.tagService.ListTags(c.Request.Context(), c.Query("company_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(tags))
}

// @Summary      Create tag
// @Tags         tags
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateTagRequest  true  "Tag payload"
// @Success      201  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/tags [post]
func (h *TagHandler) CreateTag(c *gin.Context) {
	var req service.CreateTagRequest
	if !bindJSON(c, &req) {
		return
	}
	tag, err := h.tagService.CreateTag(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(tag))
}

// @Summary      Update tag
// @Tags         tags
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                    true  "Tag ID"
// @Param        payload  body  service.UpdateTagRequest  true  "Update payload"
// @Success      200  {object}  response.Response
// @Router       /api/tags/{id} [put]
func (h *TagHandler) UpdateTag(c *gin.Context) {
	var req service.UpdateTagRequest
	if !bindJSON(c, &req) {
		return
	}
	tag, err := h.tagService.UpdateTag(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(tag))
}

// @Summary      Delete tag
// @Tags         tags
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Tag ID"
// @Success      200  {object}  response.Response
// @Router       /api/tags/{id} [delete]
func (h *TagHandler) DeleteTag(c *gin.Context) {
	if err := h.tagService.DeleteTag(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Tag deleted"}))
}
