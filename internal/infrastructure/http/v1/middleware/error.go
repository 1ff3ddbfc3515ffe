package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"prodflow/internal/core/apperror"
	"prodflow/pkg/logger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status, body := render(c, err)

		// Mark idempotency as failed with the exact response we return (best-effort).
		if key, store, ok := idempotencyFrom(c); ok {
			if raw, mErr := json.Marshal(body); mErr == nil {
				if fErr := store.FailKey(c.Request.Context(), key, status, "application/json", raw); fErr != nil {
					logger.Warn(c.Request.Context(), "failed to store idempotent error", "error", fErr)
				}
			}
		}

		c.JSON(status, body)
	}
}

func render(c *gin.Context, err error) (int, ErrorBody) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil || appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}
		return appErr.HTTPStatus, ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)
	return http.StatusInternalServerError, ErrorBody{
		Code:    apperror.CodeInternal,
		Message: "Internal server error",
		Details: map[string]any{"request_id": c.GetString("request_id")},
	}
}
