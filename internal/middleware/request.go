package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/service"
	"backoffice/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is echoed back on every response
const RequestIDHeader = "X-Request-ID"

// RequestContext assigns a request id and records client metadata for audit rows
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set("requestID", requestID)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		ctx = service.WithRequestMeta(ctx, service.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger writes one structured line per request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.Error(ctx, "request completed", args...)
		case status >= 400:
			logger.Warn(ctx, "request completed", args...)
		default:
			logger.Info(ctx, "request completed", args...)
		}
	}
}

// Recovery turns a panic into an INTERNAL_ERROR envelope
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered", "panic", r, "stack", string(debug.Stack()))
				abortWithError(c, apperr.Internal(fmt.Errorf("panic: %v", r), "internal server error"))
			}
		}()
		c.Next()
	}
}
