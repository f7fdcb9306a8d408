// Package lock provides the mutual exclusion that keeps at most one backlog
// drain running.
package lock

import (
	"context"
	"errors"
)

// ErrHeld is returned by TryLock when the lock is held elsewhere.
var ErrHeld = errors.New("lock: held")

// Locker is a non-blocking lock.
type Locker interface {
	// TryLock acquires the lock or returns ErrHeld.
	TryLock(ctx context.Context) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	// Unlock releases the lock. Calling it more than once is a no-op.
	Unlock(ctx context.Context) error
}
