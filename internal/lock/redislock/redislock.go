// Package redislock provides a lock.Locker shared by every process that
// talks to the same Redis.
//
// The lock is a key set with NX and a TTL. The holder refreshes the TTL
// while it runs and deletes the key only if it still carries its token.
package redislock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/lock"
)

var _ lock.Locker = (*Locker)(nil)

// Defaults.
const (
	DefaultKey = "movegrade:drain"
	DefaultTTL = 30 * time.Second
)

var (
	release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker is a Redis-backed lock.Locker.
type Locker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// Option configures a Locker.
type Option func(*Locker)

// WithKey sets the Redis key.
func WithKey(key string) Option {
	return func(l *Locker) { l.key = key }
}

// WithTTL sets the lease TTL. The lease is refreshed every TTL/3.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New creates a Locker on client.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		key:    DefaultKey,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock sets the key if it is absent.
func (l *Locker) TryLock(ctx context.Context) (lock.Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lock.ErrHeld
	}

	le := &lease{
		l:     l,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go le.keepAlive()
	return le, nil
}

type lease struct {
	l     *Locker
	token string

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (le *lease) keepAlive() {
	defer close(le.done)

	t := time.NewTicker(le.l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-le.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), le.l.ttl/3)
			n, err := refresh.Run(ctx, le.l.client, []string{le.l.key}, le.token, le.l.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				le.l.logger.Warn("refreshing drain lock", zap.Error(err))
			case n == 0:
				le.l.logger.Error("drain lock lost", zap.String("key", le.l.key))
				return
			}
		}
	}
}

// Unlock stops the refresh and deletes the key if this lease still owns it.
func (le *lease) Unlock(ctx context.Context) error {
	var err error
	le.once.Do(func() {
		close(le.stop)
		<-le.done
		err = release.Run(ctx, le.l.client, []string{le.l.key}, le.token).Err()
	})
	return err
}
