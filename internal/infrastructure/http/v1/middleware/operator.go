package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "prodflow/internal/core/context"
)

const (
	HeaderOperator   = "X-Operator"
	HeaderOperatorID = "X-Operator-ID"
)

// Operator puts the shop-floor operator named by the caller into the request
// context. Identity is trusted as sent by the frontend.
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := &appctx.Operator{
			ID:   strings.TrimSpace(c.GetHeader(HeaderOperatorID)),
			Name: strings.TrimSpace(c.GetHeader(HeaderOperator)),
		}
		if op.ID != "" || op.Name != "" {
			c.Request = c.Request.WithContext(appctx.WithOperator(c.Request.Context(), op))
			c.Set("operator", appctx.OperatorName(c.Request.Context()))
		}
		c.Next()
	}
}
