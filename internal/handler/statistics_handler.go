package handler

import (
	"net/http"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/middleware"
	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
}

func NewStatisticsHandler(statisticsService service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/api/statistics")
	{
		statsGroup.GET("/documents", middleware.RequirePermission(rbac.ResourceStatistics, rbac.ActionRead), h.GetDocumentStatistics)
	}
}

// @Summary      Document statistics
// @Description  Counts by pipeline, duplicate and revision status plus approved home totals per company
// @Tags         statistics
// @Produce      json
// @Param        start_date query string false "Start date (YYYY-MM-DD or RFC3339, default: first day of this month)"
// @Param        end_date   query string false "End date (YYYY-MM-DD or RFC3339, default: now)"
// @Success      200 {object} response.Response
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      401 {object} response.Response "Unauthorized"
// @Security     CookieAuth
// @Router       /api/statistics/documents [get]
func (h *StatisticsHandler) GetDocumentStatistics(c *gin.Context) {
	now := time.Now()

	// Default to current month if no dates are provided
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	endDate := now

	if raw := c.Query("start_date"); raw != "" {
		t, ok := parseStatDate(raw, false)
		if !ok {
			respondError(c, apperr.Validation("invalid start_date format, expected YYYY-MM-DD or RFC3339"))
			return
		}
		startDate = t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, ok := parseStatDate(raw, true)
		if !ok {
			respondError(c, apperr.Validation("invalid end_date format, expected YYYY-MM-DD or RFC3339"))
			return
		}
		endDate = t
	}
	if endDate.Before(startDate) {
		respondError(c, apperr.Validation("end_date must not be before start_date"))
		return
	}

	stats, err := h.statisticsService.GetDocumentStatistics(c.Request.Context(), startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(stats))
}

// parseStatDate accepts a plain date or RFC3339. A plain end date covers the whole day.
func parseStatDate(raw string, endOfDay bool) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}
