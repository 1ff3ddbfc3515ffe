// Package main is the entry point for the prodflow background worker.
// It relays the transactional outbox to Kafka and runs periodic cleanup.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"prodflow/internal/config"
	"prodflow/internal/infrastructure/messaging"
	"prodflow/internal/infrastructure/metrics"
	"prodflow/internal/infrastructure/storage/postgres"
	"prodflow/pkg/logger"
)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting prodflow worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.ApplicationName = "prodflow-worker"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	var handler postgres.OutboxHandler
	if len(cfg.KafkaBrokers) > 0 {
		kafka := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafka.Close(); err != nil {
				log.Warnw("failed to close kafka writer", "error", err)
			}
		}()
		handler = kafka
		log.Infow("publishing outbox to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		handler = logHandler{log: log.WithComponent("outbox")}
		log.Warn("KAFKA_BROKERS not set, outbox messages are only logged")
	}

	m := metrics.New()
	worker := &Worker{
		relay:       postgres.NewOutboxRelay(txManager, cfg.OutboxBatchSize, handler, log),
		idempotency: postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL),
		metrics:     m,
		log:         log.WithComponent("worker"),
		poll:        cfg.OutboxPollInterval,
		retention:   cfg.OutboxRetention,
	}

	var metricsServer *http.Server
	if cfg.WorkerMetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		stop()
	}
	log.Info("worker stopped")
}

// Worker drives the outbox relay and the hourly housekeeping jobs.
type Worker struct {
	relay       *postgres.OutboxRelay
	idempotency *postgres.IdempotencyStore
	metrics     *metrics.Metrics
	log         *logger.Logger
	poll        time.Duration
	retention   time.Duration
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	delivered, err := w.relay.ProcessBatch(ctx)
	w.metrics.ObserveOutboxBatch(delivered, err)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Errorw("outbox batch failed", "error", err)
		}
		return
	}
	if delivered > 0 {
		w.log.Debugw("processed outbox batch", "count", delivered)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("failed to move outbox messages to dlq", "error", err)
	} else if n > 0 {
		w.log.Warnw("moved failed outbox messages to dlq", "count", n)
	}

	if n, err := w.relay.PurgePublished(ctx, w.retention); err != nil {
		w.log.Errorw("failed to purge published outbox messages", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}

	if n, err := w.idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
	} else if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}

// logHandler stands in for Kafka in environments without a broker.
type logHandler struct {
	log *logger.Logger
}

func (h logHandler) Handle(_ context.Context, msg *postgres.OutboxMessage) error {
	h.log.Infow("outbox message",
		"id", msg.ID,
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
		"retry_count", msg.RetryCount,
	)
	return nil
}
