package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodflow/internal/core/id"
	"prodflow/internal/domain/flow"
)

func TestNextRetryAt_Backoff(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Minute), nextRetryAt(now, 0))
	assert.Equal(t, now.Add(2*time.Minute), nextRetryAt(now, 1))
	assert.Equal(t, now.Add(16*time.Minute), nextRetryAt(now, 4))
	assert.Equal(t, now.Add(time.Hour), nextRetryAt(now, 6))
	assert.Equal(t, now.Add(time.Hour), nextRetryAt(now, 40))
}

func TestOutboxPublisher_RequiresTransaction(t *testing.T) {
	p := NewOutboxPublisher(&TxManager{})
	err := p.Publish(context.Background(), flow.Event{Type: flow.EventOrderCreated, OrderID: id.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction")
}
