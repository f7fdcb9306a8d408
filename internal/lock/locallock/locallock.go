// Package locallock provides an in-process lock.Locker.
package locallock

import (
	"context"
	"sync"

	"github.com/discochess/movegrade/internal/lock"
)

var _ lock.Locker = (*Locker)(nil)

// Locker is a lock.Locker backed by a mutex.
type Locker struct {
	mu sync.Mutex
}

// New creates an unlocked Locker.
func New() *Locker {
	return &Locker{}
}

// TryLock acquires the lock without blocking.
func (l *Locker) TryLock(ctx context.Context) (lock.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, lock.ErrHeld
	}
	return &lease{l: l}, nil
}

type lease struct {
	l    *Locker
	once sync.Once
}

func (le *lease) Unlock(context.Context) error {
	le.once.Do(le.l.mu.Unlock)
	return nil
}
