package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodflow/internal/core/apperror"
)

func TestObserveOperation_LabelsByCode(t *testing.T) {
	m := New()

	m.ObserveOperation("record_production", nil, 10*time.Millisecond)
	m.ObserveOperation("record_production", apperror.NewInsufficientBalance(apperror.ScopeOrder, 5, 1), time.Millisecond)
	m.ObserveOperation("record_production", apperror.NewInsufficientBalance(apperror.ScopeLot, 5, 1), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("record_production", "OK")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("record_production", apperror.CodeInsufficientBalance)))
}

func TestMiddleware_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/orders/1", "/orders/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/orders/:id", "GET", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("unmatched", "GET", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "prodflow_http_requests_total")
}

func TestObserveOutboxBatch(t *testing.T) {
	m := New()
	m.ObserveOutboxBatch(3, nil)
	m.ObserveOutboxBatch(0, assert.AnError)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.outboxDelivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxFailed))
}
