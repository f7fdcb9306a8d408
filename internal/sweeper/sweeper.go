// Package sweeper periodically returns orphaned claims to the backlog.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/stats"
)

// Defaults.
const (
	DefaultInterval   = time.Minute
	DefaultStaleAfter = 30 * time.Minute
)

// Store is the part of the game store the sweeper needs.
type Store interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper resets games that stayed Processing longer than StaleAfter.
// The threshold must comfortably exceed the longest game analysis, or a
// live claim can be handed to a second worker.
type Sweeper struct {
	store      Store
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	stats      stats.Collector
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStaleAfter sets the claim age after which a game is reset.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return func(s *Sweeper) { s.stats = c }
}

// New creates a Sweeper.
func New(st Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:      st,
		interval:   DefaultInterval,
		staleAfter: DefaultStaleAfter,
		logger:     zap.NewNop(),
		stats:      stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("sweeper")
	return s
}

// SweepOnce runs a single sweep and returns the number of games reset.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.store.SweepStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Warn("sweep failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.stats.IncCounter(stats.MetricStaleSwept, int64(n))
		s.logger.Info("reset stale claims", zap.Int("games", n), zap.Duration("older_than", s.staleAfter))
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled. Sweep errors are
// logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}
