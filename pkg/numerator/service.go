// Package numerator provides atomic per-key sequences backed by the
// sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	corenumerator "prodflow/internal/core/numerator"
)

// Strategy defines the number generation strategy.
type Strategy int

const (
	// StrategyStrict uses INSERT ... ON CONFLICT ... RETURNING for every number.
	// Run inside the caller's transaction, a rollback also releases the number,
	// so sequences stay gapless.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Much faster, but may produce gaps if the process restarts.
	// The querier must not be transaction-bound: a rolled back reservation
	// would leave the in-memory range pointing at numbers the table forgot.
	StrategyCached
)

// ParseStrategy maps a config value to a Strategy. Unknown values are strict.
func ParseStrategy(s string) Strategy {
	if s == "cached" {
		return StrategyCached
	}
	return StrategyStrict
}

// Options configuration for number generation.
type Options struct {
	// Strategy to use for number generation
	Strategy Strategy
	// RangeSize is the number of values to allocate at once in Cached strategy.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() Options {
	return Options{
		Strategy: StrategyStrict,
	}
}

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service implements corenumerator.Sequencer on top of sys_sequences.
type Service struct {
	resolve func(ctx context.Context) Querier
	opts    Options

	// cacheMu protects ranges map
	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

// Ensure compile-time interface compliance.
var _ corenumerator.Sequencer = (*Service)(nil)

// New creates a service with a fixed querier (pool or test double).
func New(querier Querier, opts Options) *Service {
	return NewWithResolver(func(context.Context) Querier { return querier }, opts)
}

// NewWithResolver creates a service that picks its querier per call, e.g. the
// transaction carried by ctx.
func NewWithResolver(resolve func(ctx context.Context) Querier, opts Options) *Service {
	return &Service{
		resolve: resolve,
		opts:    opts,
		ranges:  make(map[string]*cachedRange),
	}
}

// Next returns the next value for key. The first value of a key is 1.
func (s *Service) Next(ctx context.Context, key string) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}

	switch s.opts.Strategy {
	case StrategyCached:
		return s.nextCached(ctx, key)
	default:
		return s.nextStrict(ctx, key)
	}
}

// nextStrict bumps the DB counter by one.
func (s *Service) nextStrict(ctx context.Context, key string) (int64, error) {
	var num int64
	err := s.resolve(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// nextCached serves from memory, refilling a range from DB when exhausted.
func (s *Service) nextCached(ctx context.Context, key string) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, exists := s.ranges[key]
	if !exists {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		size := s.opts.RangeSize
		if size <= 0 {
			size = 50
		}

		// current_val is the last handed-out value; reserving bumps it by size,
		// so the new range is (newMax-size, newMax].
		var newMax int64
		err := s.resolve(ctx).QueryRow(ctx, `
			INSERT INTO sys_sequences (key, current_val)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
			RETURNING current_val
		`, key, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}

		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// Set forces the last handed-out value of key (for data migration).
func (s *Service) Set(ctx context.Context, key string, value int64) error {
	var result int64
	err := s.resolve(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&result)

	s.cacheMu.Lock()
	delete(s.ranges, key)
	s.cacheMu.Unlock()

	if err != nil {
		return fmt.Errorf("set sequence: %w", err)
	}
	return nil
}
