package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences for a single key.
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	calls        int
	err          error
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}

	// Strict passes (key); cached passes (key, increment).
	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func TestNext_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q, DefaultOptions())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := svc.Next(ctx, "lot:A:INS")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	if q.calls != 3 {
		t.Errorf("expected 3 DB calls, got %d", q.calls)
	}
}

func TestNext_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q, Options{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()

	// First call reserves 1..10.
	num, err := svc.Next(ctx, "lot:A:EMB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != 1 {
		t.Errorf("expected 1, got %d", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to be 10, got %d", q.currentValue)
	}

	// Served from memory.
	num, _ = svc.Next(ctx, "lot:A:EMB")
	if num != 2 {
		t.Errorf("expected 2, got %d", num)
	}
	if q.calls != 1 {
		t.Errorf("expected a single DB call, got %d", q.calls)
	}

	for i := 0; i < 8; i++ {
		_, _ = svc.Next(ctx, "lot:A:EMB")
	}

	// Range exhausted: next reservation is 11..20.
	num, _ = svc.Next(ctx, "lot:A:EMB")
	if num != 11 {
		t.Errorf("expected 11, got %d", num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected DB value to be 20, got %d", q.currentValue)
	}
}

func TestNext_PropagatesError(t *testing.T) {
	q := &mockQuerier{err: errors.New("conn reset")}
	svc := New(q, DefaultOptions())

	if _, err := svc.Next(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseStrategy(t *testing.T) {
	if ParseStrategy("cached") != StrategyCached {
		t.Error("cached not parsed")
	}
	if ParseStrategy("whatever") != StrategyStrict {
		t.Error("unknown value must default to strict")
	}
}
