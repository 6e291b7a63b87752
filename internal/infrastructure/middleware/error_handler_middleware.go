package middleware

import (
	"net/http"

	"streamwatch/pkg/errors"
	"streamwatch/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error attached to the context.
// AppErrors keep their status and code; anything else becomes a 500.
func ErrorHandlerMiddleware(log *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var appErr *errors.AppError
		if errors.IsAppError(err) {
			appErr = errors.GetAppError(err)
		} else {
			appErr = errors.NewInternalError("Internal server error")
		}

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.LogError(c.Request.Context(), err, "request failed",
				zap.String("code", string(appErr.Code)),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(log *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithContext(c.Request.Context()).Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)

				appErr := errors.NewInternalError("Internal server error")
				c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
					"error":   string(appErr.Code),
					"message": appErr.Message,
				})
			}
		}()

		c.Next()
	}
}
