// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"prodflow/internal/domain/flow"
	"prodflow/internal/infrastructure/http/v1/handlers"
	"prodflow/internal/infrastructure/http/v1/middleware"
	"prodflow/internal/infrastructure/metrics"
	"prodflow/internal/infrastructure/storage/postgres"
	"prodflow/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Service is the stage flow engine.
	Service *flow.Service

	// Logger for request logging
	Logger *logger.Logger

	// Pool is reported by the health endpoints. Nil on the memory store.
	Pool *postgres.Pool

	// HealthChecks are extra readiness checks (redis, ...).
	HealthChecks map[string]handlers.Pinger

	// Metrics enables the /metrics endpoint and request metrics.
	Metrics *metrics.Metrics

	// Idempotency enables X-Idempotency-Key handling when set.
	Idempotency middleware.IdempotencyStore

	Version string
	Debug   bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Operator())
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	handlers.NewOrderHandler(base, cfg.Service).RegisterRoutes(api.Group("/orders"))
	handlers.NewProductionHandler(base, cfg.Service).RegisterRoutes(api.Group("/orders"))
	handlers.NewStockHandler(base, cfg.Service).RegisterRoutes(api)

	return router
}
