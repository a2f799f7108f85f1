package handler

import (
	"errors"
	"net/http"
	"strconv"

	"backoffice/internal/apperr"
	"backoffice/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func respondError(c *gin.Context, err error) {
	middleware.WriteError(c, err)
}

// bindJSON binds the request body into dst and writes the error envelope on
// failure. Malformed JSON is reported as a validation error.
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verrs):
		respondError(c, err)
	case errors.As(err, &tooLarge):
		respondError(c, apperr.Validation("request body too large"))
	default:
		respondError(c, apperr.Validation("invalid request payload: %v", err))
	}
	return false
}

// lockVersionQuery reads the required lock_version query parameter used by
// DELETE routes, which carry no body.
func lockVersionQuery(c *gin.Context) (int, bool) {
	raw := c.Query("lock_version")
	if raw == "" {
		respondError(c, apperr.Validation("lock_version is required"))
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondError(c, apperr.Validation("lock_version must be a non-negative integer"))
		return 0, false
	}
	return v, true
}

func queryBool(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}
