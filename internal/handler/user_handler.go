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

// UserHandler manages tenant users and their role assignments
type UserHandler struct {
	userService service.UserService
}

func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := middleware.RequirePermission(rbac.ResourceUsers, rbac.ActionRead)
	manage := middleware.RequirePermission(rbac.ResourceUsers, rbac.ActionManage)

	users := router.Group("/api/users")
	{
		users.GET("", read, h.ListUsers)
		users.POST("", manage, h.CreateUser)
		users.GET("/:id", read, h.GetUserByID)
		users.PUT("/:id", manage, h.UpdateUser)
		users.DELETE("/:id", manage, h.DeleteUser)

		users.GET("/:id/role-assignments", read, h.ListAssignments)
		users.POST("/:id/role-assignments", manage, h.AssignRole)
		users.DELETE("/:id/role-assignments/:assignmentId", manage, h.UnassignRole)
	}
}

// CreateUser creates a user in the caller's tenant
// @Summary      Create user
// @Tags         users
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateUserRequest  true  "User payload"
// @Success      201  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(user))
}

// ListUsers returns a page of users
// @Summary      List users
// @Tags         users
// @Security     CookieAuth
// @Produce      json
// @Param        page    query  int     false  "Page number (default: 1)"
// @Param        limit   query  int     false  "Items per page (default: 20)"
// @Param        search  query  string  false  "Search by name or email"
// @Param        role    query  string  false  "System role"
// @Success      200  {object}  response.Response
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := pagination.Parse(c)
	users, total, err := h.userService.ListUsers(c.Request.Context(), service.UserListRequest{
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(users, total, p.Page, p.Limit))
}

// GetUserByID returns one user
// @Summary      Get user
// @Tags         users
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(user))
}

// UpdateUser updates profile, role or active flag
// @Summary      Update user
// @Tags         users
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                     true  "User ID"
// @Param        payload  body  service.UpdateUserRequest  true  "Update payload"
// @Success      200  {object}  response.Response
// @Router       /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(user))
}

// DeleteUser soft deletes a user
// @Summary      Delete user
// @Tags         users
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  response.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"message": "User deleted successfully"}))
}

// ListAssignments returns the user's role assignments
// @Summary      List role assignments
// @Tags         users
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  response.Response
// @Router       /api/users/{id}/role-assignments [get]
func (h *UserHandler) ListAssignments(c *gin.Context) {
	assignments, err := h.userService.ListAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(assignments))
}

// AssignRole grants a role tenant-wide or for one company
// @Summary      Assign role
// @Tags         users
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                     true  "User ID"
// @Param        payload  body  service.AssignRoleRequest  true  "Role and optional company"
// @Success      201  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/users/{id}/role-assignments [post]
func (h *UserHandler) AssignRole(c *gin.Context) {
	var req service.AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.userService.AssignRole(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(assignment))
}

// UnassignRole removes one assignment
// @Summary      Remove role assignment
// @Tags         users
// @Security     CookieAuth
// @Produce      json
// @Param        id            path  string  true  "User ID"
// @Param        assignmentId  path  string  true  "Assignment ID"
// @Success      200  {object}  response.Response
// @Router       /api/users/{id}/role-assignments/{assignmentId} [delete]
func (h *UserHandler) UnassignRole(c *gin.Context) {
	if err := h.userService.UnassignRole(c.Request.Context(), c.Param("id"), c.Param("assignmentId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Role assignment removed"}))
}
