// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"prodflow/internal/core/apperror"
	"prodflow/pkg/logger"
)

// Recovery turns a panic into INTERNAL_ERROR. The stack trace is logged,
// never returned.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", r,
					"route", c.FullPath(),
					"stack", string(debug.Stack()),
				)

				// ErrorHandler sits inside this middleware and was unwound.
				err := apperror.NewInternal(fmt.Errorf("panic: %v", r)).
					WithDetail("request_id", c.GetString("request_id"))
				_ = c.Error(err)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(err.HTTPStatus, ErrorBody{
					Code:    err.Code,
					Message: err.Message,
					Details: err.Details,
				})
			}
		}()
		c.Next()
	}
}
