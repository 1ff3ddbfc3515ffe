package numerator

import (
	"context"
	"sync"
)

// MockSequencer is a test implementation of Sequencer.
// Without NextFunc it counts per key starting at 1.
type MockSequencer struct {
	NextFunc func(ctx context.Context, key string) (int64, error)

	mu     sync.Mutex
	counts map[string]int64
}

// Next implements Sequencer.
func (m *MockSequencer) Next(ctx context.Context, key string) (int64, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	return m.counts[key], nil
}

// Ensure compile-time interface compliance.
var _ Sequencer = (*MockSequencer)(nil)
