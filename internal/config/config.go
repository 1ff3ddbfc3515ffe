// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the typed process configuration shared by the server and the worker.
type Config struct {
	Env      string `validate:"required,oneof=development staging production test"`
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`

	DatabaseURL string `validate:"required"`
	DBMaxConns  int32  `validate:"gte=1"`
	DBMinConns  int32  `validate:"gte=0,ltefield=DBMaxConns"`

	RedisURL     string
	OrderLockTTL time.Duration `validate:"gt=0"`

	KafkaBrokers       []string
	KafkaTopic         string        `validate:"required_with=KafkaBrokers"`
	OutboxPollInterval time.Duration `validate:"gt=0"`
	OutboxBatchSize    int           `validate:"gte=1,lte=1000"`
	OutboxRetention    time.Duration `validate:"gt=0"`
	WorkerMetricsPort  string        `validate:"omitempty,numeric"`

	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration `validate:"gt=0"`

	LotSequenceStrategy string `validate:"oneof=strict cached"`
}

// Development reports whether the development encoder and gin debug mode apply.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// Load reads an optional .env file (files listed in paths, or ./.env) and then
// the process environment. Variables already set in the environment win.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		Env:      r.str("APP_ENV", "development"),
		Port:     r.str("APP_PORT", "8080"),
		LogLevel: strings.ToLower(r.str("LOG_LEVEL", "info")),

		DatabaseURL: r.str("DATABASE_URL", ""),
		DBMaxConns:  int32(r.int("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(r.int("DB_MIN_CONNS", 2)),

		RedisURL:     r.str("REDIS_URL", ""),
		OrderLockTTL: r.duration("ORDER_LOCK_TTL", 30*time.Second),

		KafkaBrokers:       r.list("KAFKA_BROKERS"),
		KafkaTopic:         r.str("KAFKA_TOPIC", "prodflow.events"),
		OutboxPollInterval: r.duration("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:    r.int("OUTBOX_BATCH_SIZE", 100),
		OutboxRetention:    r.duration("OUTBOX_RETENTION", 7*24*time.Hour),
		WorkerMetricsPort:  r.str("WORKER_METRICS_PORT", "9091"),

		IdempotencyEnabled: r.bool("IDEMPOTENCY_ENABLED", false),
		IdempotencyTTL:     r.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		LotSequenceStrategy: strings.ToLower(r.str("LOT_SEQUENCE_STRATEGY", "strict")),
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
