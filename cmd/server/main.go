// Package main is the entry point for the prodflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prodflow/internal/config"
	"prodflow/internal/core/lock"
	"prodflow/internal/domain/flow"
	v1 "prodflow/internal/infrastructure/http/v1"
	"prodflow/internal/infrastructure/http/v1/handlers"
	"prodflow/internal/infrastructure/http/v1/middleware"
	redislock "prodflow/internal/infrastructure/lock"
	"prodflow/internal/infrastructure/metrics"
	"prodflow/internal/infrastructure/storage/postgres"
	"prodflow/internal/infrastructure/storage/postgres/flow_repo"
	"prodflow/pkg/logger"
	"prodflow/pkg/numerator"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	log.Infow("starting prodflow server", "version", version, "env", cfg.Env)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	movements, err := postgres.NewMovementLog(txManager)
	if err != nil {
		log.Fatalw("failed to initialize movement log", "error", err)
	}

	// --- Lot sequences ---
	// Cached ranges outlive a rollback, so they must not share the caller's transaction.
	seqOpts := numerator.DefaultOptions()
	seqOpts.Strategy = numerator.ParseStrategy(cfg.LotSequenceStrategy)
	var sequencer *numerator.Service
	if seqOpts.Strategy == numerator.StrategyCached {
		sequencer = numerator.New(pool, seqOpts)
	} else {
		sequencer = numerator.NewWithResolver(func(ctx context.Context) numerator.Querier {
			return txManager.GetQuerier(ctx)
		}, seqOpts)
	}

	// --- Per-order lock ---
	checks := map[string]handlers.Pinger{}
	var locker lock.Locker
	if cfg.RedisURL != "" {
		rdb, err := redislock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		locker = redislock.NewRedisLocker(rdb, cfg.OrderLockTTL)
		checks["redis"] = pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Infow("redis order lock enabled", "ttl", cfg.OrderLockTTL)
	} else {
		log.Warn("REDIS_URL not set, relying on row locks only")
	}

	m := metrics.New()

	service := flow.NewService(flow.Deps{
		Orders:     flow_repo.NewOrderRepo(txManager),
		Events:     flow_repo.NewEventRepo(txManager),
		Deductions: flow_repo.NewDeductionRepo(txManager),
		Movements:  movements,
		TxManager:  txManager,
		Locker:     locker,
		Sequencer:  sequencer,
		Publisher:  postgres.NewOutboxPublisher(txManager),
		Observer:   m,
	})

	var idempotency middleware.IdempotencyStore
	if cfg.IdempotencyEnabled {
		idempotency = postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL)
		log.Infow("idempotency keys enabled", "ttl", cfg.IdempotencyTTL)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Service:      service,
		Logger:       log,
		Pool:         pool,
		HealthChecks: checks,
		Metrics:      m,
		Idempotency:  idempotency,
		Version:      version,
		Debug:        cfg.Development(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
