// Package numerator provides domain contracts for sequence numbering.
// Implementations live in pkg/numerator.
package numerator

import (
	"context"
)

// Sequencer hands out strictly increasing numbers per key.
// Implementations must be atomic across processes: two concurrent calls
// with the same key never receive the same value.
type Sequencer interface {
	Next(ctx context.Context, key string) (int64, error)
}
