// Package lock defines the per-key mutual exclusion contract used around
// balance-affecting operations.
package lock

import (
	"context"
	"errors"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("lock not obtained")

// Locker obtains short-lived exclusive locks.
type Locker interface {
	// Obtain acquires key or fails with ErrNotObtained.
	// The returned release func is safe to call once.
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// Noop never blocks. Used when no lock backend is configured.
type Noop struct{}

// Obtain implements Locker.
func (Noop) Obtain(context.Context, string) (func(), error) {
	return func() {}, nil
}
