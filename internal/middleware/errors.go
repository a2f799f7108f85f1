package middleware

import (
	"errors"

	"backoffice/internal/apperr"
	"backoffice/internal/validation"
	"backoffice/pkg/logger"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// WriteError classifies err and writes the error envelope. Internal errors are
// logged and their message hidden from the client.
func WriteError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	c.JSON(status, body)
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	c.AbortWithStatusJSON(status, body)
}

func errorResponse(c *gin.Context, err error) (int, response.Response) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperr.HTTPStatus(apperr.CodeValidation),
			response.ErrorWithDetails(string(apperr.CodeValidation), "request validation failed", validation.Details(err))
	}

	appErr := apperr.Classify(err)
	status := appErr.Status()
	message := appErr.Message
	if appErr.Code == apperr.CodeInternal {
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		message = "internal server error"
	} else if appErr.Code == apperr.CodeServiceUnavailable {
		logger.Warn(c.Request.Context(), "dependency unavailable", "path", c.FullPath(), "error", err)
	}
	if appErr.Details != nil {
		return status, response.ErrorWithDetails(string(appErr.Code), message, appErr.Details)
	}
	return status, response.Error(string(appErr.Code), message)
}
