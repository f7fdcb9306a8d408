// Package coordinator drains the analysis backlog: it claims batches of
// games, fans them out to workers bounded by the engine pool, and commits
// each batch as a unit.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/stats"
	"github.com/discochess/movegrade/internal/store"
)

// Defaults.
const (
	DefaultBatchSize        = 10
	DefaultConcurrency      = 8
	DefaultPause            = time.Second
	DefaultMaxAttempts      = 3
	DefaultMaxStoreFailures = 5
	DefaultGameTimeout      = 10 * time.Minute
	DefaultCommitTimeout    = 30 * time.Second
)

// ErrStore is returned by Drain after too many consecutive store failures.
var ErrStore = errors.New("coordinator: store unavailable")

// ClaimLifetime bounds how long a claimed game can stay Processing in a
// live drain: games of a batch run concurrency at a time, each up to
// gameTimeout, and the batch commits as a unit.
func ClaimLifetime(batchSize, concurrency int, gameTimeout, commitTimeout time.Duration) time.Duration {
	if concurrency <= 0 {
		concurrency = 1
	}
	waves := (batchSize + concurrency - 1) / concurrency
	return time.Duration(waves)*gameTimeout + commitTimeout
}

// Progress reports the state of a drain after each batch.
type Progress struct {
	Batches        int
	Claimed        int
	Analyzed       int
	Failed         int
	Deferred       int
	CommitFailures int

	// Elapsed holds the analysis time of every game that succeeded in the
	// batch just committed. It is only valid during the callback.
	Elapsed []time.Duration
}

// ProgressFunc is called after every batch.
type ProgressFunc func(Progress)

// Summary is the outcome of a drain.
type Summary struct {
	Batches        int
	Claimed        int
	Analyzed       int
	Failed         int
	Deferred       int
	CommitFailures int
}

// Coordinator drains the backlog of a store.
// A Coordinator may run several drains, but callers are expected to run at
// most one at a time; see the job package.
type Coordinator struct {
	store  store.Store
	worker *worker

	batchSize        int
	concurrency      int
	pause            time.Duration
	maxAttempts      int
	maxStoreFailures int
	commitTimeout    time.Duration
	progress         ProgressFunc
	logger           *zap.Logger
	stats            stats.Collector
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBatchSize sets how many games are claimed per batch.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithConcurrency sets how many games are analyzed at once. It should not
// exceed the size of the engine pool.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithPause sets the pause between batches.
func WithPause(d time.Duration) Option {
	return func(c *Coordinator) { c.pause = d }
}

// WithMaxAttempts sets how many times a game may fail within one drain
// before it is left for a later drain.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithMaxStoreFailures sets how many consecutive claim or commit failures
// end a drain.
func WithMaxStoreFailures(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxStoreFailures = n
		}
	}
}

// WithGameTimeout bounds the analysis of a single game.
func WithGameTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.worker.timeout = d }
}

// WithCommitTimeout bounds the commit of a batch.
func WithCommitTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.commitTimeout = d }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) { c.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithStats sets the stats collector.
func WithStats(s stats.Collector) Option {
	return func(c *Coordinator) { c.stats = s }
}

// New creates a coordinator over s that analyzes games on engines.
func New(s store.Store, engines Engines, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            s,
		worker:           &worker{engines: engines, timeout: DefaultGameTimeout},
		batchSize:        DefaultBatchSize,
		concurrency:      DefaultConcurrency,
		pause:            DefaultPause,
		maxAttempts:      DefaultMaxAttempts,
		maxStoreFailures: DefaultMaxStoreFailures,
		commitTimeout:    DefaultCommitTimeout,
		logger:           zap.NewNop(),
		stats:            stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("coordinator")
	c.worker.logger = c.logger.Named("worker")
	c.worker.stats = c.stats
	return c
}

// Drain claims and analyzes batches until no eligible game is left.
//
// Cancelling ctx stops Drain from claiming further batches; the batch in
// flight is still analyzed and committed. Games that fail repeatedly are
// excluded for the rest of the drain and stay eligible.
func (c *Coordinator) Drain(ctx context.Context) (Summary, error) {
	return c.DrainWithProgress(ctx, nil)
}

// DrainWithProgress is Drain with an extra progress callback that runs
// after the one configured by WithProgress.
func (c *Coordinator) DrainWithProgress(ctx context.Context, fn ProgressFunc) (Summary, error) {
	var (
		p             Progress
		attempts      = make(map[string]int)
		excluded      []string
		storeFailures int
	)
	summary := func() Summary {
		return Summary{
			Batches:        p.Batches,
			Claimed:        p.Claimed,
			Analyzed:       p.Analyzed,
			Failed:         p.Failed,
			Deferred:       p.Deferred,
			CommitFailures: p.CommitFailures,
		}
	}

	c.logger.Info("drain started", zap.Int("batch_size", c.batchSize), zap.Int("concurrency", c.concurrency))

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("drain stopped", zap.Error(err))
			return summary(), err
		}

		games, err := c.store.ClaimBatch(ctx, store.ClaimRequest{Limit: c.batchSize, Exclude: excluded})
		if err != nil {
			storeFailures++
			c.stats.IncCounter(stats.MetricClaimFailures, 1)
			c.logger.Error("claiming batch", zap.Error(err), zap.Int("consecutive_failures", storeFailures))
			if storeFailures >= c.maxStoreFailures {
				return summary(), fmt.Errorf("%w: claim: %w", ErrStore, err)
			}
			if err := sleep(ctx, c.pause); err != nil {
				return summary(), err
			}
			continue
		}
		if len(games) == 0 {
			break
		}

		p.Batches++
		p.Claimed += len(games)
		c.stats.IncCounter(stats.MetricBatches, 1)
		c.stats.IncCounter(stats.MetricGamesClaimed, int64(len(games)))

		outcomes := c.analyzeBatch(ctx, games)

		p.Elapsed = p.Elapsed[:0]
		if err := c.commit(ctx, games, outcomes); err != nil {
			storeFailures++
			p.CommitFailures++
			c.stats.IncCounter(stats.MetricCommitFailures, 1)
			c.logger.Error("committing batch", zap.Error(err), zap.Int("games", len(games)))
			if storeFailures >= c.maxStoreFailures {
				return summary(), fmt.Errorf("%w: commit: %w", ErrStore, err)
			}
		} else {
			storeFailures = 0
			for _, o := range outcomes {
				if o.result.Succeeded() {
					p.Analyzed++
					p.Elapsed = append(p.Elapsed, o.elapsed)
					continue
				}
				p.Failed++
				attempts[o.result.GameID]++
				if attempts[o.result.GameID] >= c.maxAttempts {
					excluded = append(excluded, o.result.GameID)
					p.Deferred++
					c.stats.IncCounter(stats.MetricGamesDeferred, 1)
					c.logger.Warn("deferring game to a later drain",
						zap.String("game", o.result.GameID),
						zap.Int("attempts", attempts[o.result.GameID]),
					)
				}
			}
			c.stats.IncCounter(stats.MetricGamesAnalyzed, int64(len(p.Elapsed)))
		}

		if c.progress != nil {
			c.progress(p)
		}
		if fn != nil {
			fn(p)
		}

		if err := sleep(ctx, c.pause); err != nil {
			c.logger.Info("drain stopped", zap.Error(err))
			return summary(), err
		}
	}

	s := summary()
	c.logger.Info("drain finished",
		zap.Int("batches", s.Batches),
		zap.Int("analyzed", s.Analyzed),
		zap.Int("failed", s.Failed),
		zap.Int("deferred", s.Deferred),
	)
	return s, nil
}

// analyzeBatch runs one worker per game, at most concurrency at a time.
// Workers run detached from ctx so that a shutdown lets them finish.
func (c *Coordinator) analyzeBatch(ctx context.Context, games []*game.Game) []outcome {
	wctx := context.WithoutCancel(ctx)
	outcomes := make([]outcome, len(games))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, gm := range games {
		g.Go(func() error {
			outcomes[i] = c.worker.analyze(wctx, gm)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// commit writes all outcomes in one batch. On any failure nothing is
// persisted and every claimed game is released.
func (c *Coordinator) commit(ctx context.Context, games []*game.Game, outcomes []outcome) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
	defer cancel()

	err := c.writeBatch(cctx, outcomes)
	if err == nil {
		return nil
	}

	ids := make([]string, len(games))
	for i, g := range games {
		ids[i] = g.ID
	}
	if rerr := c.store.Release(cctx, ids); rerr != nil {
		c.logger.Error("releasing batch after failed commit; games wait for the stale sweep",
			zap.Error(rerr), zap.Strings("games", ids))
	}
	return err
}

func (c *Coordinator) writeBatch(ctx context.Context, outcomes []outcome) error {
	b, err := c.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, o := range outcomes {
		if err := b.WriteResult(ctx, o.result); err != nil {
			if rerr := b.Rollback(ctx); rerr != nil {
				c.logger.Warn("rolling back batch", zap.Error(rerr))
			}
			return fmt.Errorf("writing result for %s: %w", o.result.GameID, err)
		}
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
