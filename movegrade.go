// Package movegrade imports chess games and grades every move with a UCI
// engine.
//
// Games wait in a shared backlog. A drain claims them in batches, analyzes
// each game on its own engine and commits the batch as a unit, so several
// processes can drain the same store without analyzing a game twice.
//
// Example usage:
//
//	client, err := movegrade.New(
//	    movegrade.WithStore(st),
//	    movegrade.WithUCIEngine(uciengine.Config{Path: "stockfish"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	job, started, err := client.StartBatchAnalysis(ctx)
//	...
//	analysis, err := client.GetAnalysis(ctx, "104857600")
package movegrade

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/chesscom"
	"github.com/discochess/movegrade/internal/codec/codecs"
	"github.com/discochess/movegrade/internal/coordinator"
	"github.com/discochess/movegrade/internal/engine/pool"
	"github.com/discochess/movegrade/internal/export"
	"github.com/discochess/movegrade/internal/ingest"
	"github.com/discochess/movegrade/internal/job"
	"github.com/discochess/movegrade/internal/lock"
	"github.com/discochess/movegrade/internal/lock/locallock"
	"github.com/discochess/movegrade/internal/stats"
	"github.com/discochess/movegrade/internal/store"
	"github.com/discochess/movegrade/internal/store/cachedstore"
	"github.com/discochess/movegrade/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/movegrade/internal/store/cachedstore/memory"
	"github.com/discochess/movegrade/internal/sweeper"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrNotFound indicates the game or player does not exist.
	ErrNotFound = errors.New("movegrade: not found")

	// ErrNotAnalyzed indicates the game exists but its moves have not been
	// analyzed yet.
	ErrNotAnalyzed = errors.New("movegrade: game not analyzed")

	// ErrBusy indicates another process is draining the backlog.
	ErrBusy = errors.New("movegrade: analysis running elsewhere")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("movegrade: client closed")

	// ErrNoStore indicates no store was provided.
	ErrNoStore = errors.New("movegrade: no store provided")

	// ErrNoEngine indicates no engine factory was provided.
	ErrNoEngine = errors.New("movegrade: no engine provided")

	// ErrUnsupported indicates the store lacks the requested capability.
	ErrUnsupported = errors.New("movegrade: not supported by store")

	// ErrInvalidOption indicates options that cannot run together.
	ErrInvalidOption = errors.New("movegrade: invalid option")
)

// Client imports games and runs analysis drains.
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	store   store.Store
	backing store.Store
	pool    *pool.Pool
	coord   *coordinator.Coordinator
	runner  *job.Runner
	locker  lock.Locker
	sweeper *sweeper.Sweeper
	ingest  *ingest.Service
	export  *export.Exporter
	stats   stats.Collector
	logger  *zap.Logger
	closed  atomic.Bool
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if cfg.store == nil {
		return nil, ErrNoStore
	}
	if cfg.factory == nil {
		return nil, ErrNoEngine
	}
	if cfg.locker == nil {
		cfg.locker = locallock.New()
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = coordinator.DefaultBatchSize
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = coordinator.DefaultConcurrency
	}
	if cfg.poolSize <= 0 {
		cfg.poolSize = cfg.concurrency
	}
	if cfg.staleAfter <= 0 {
		cfg.staleAfter = sweeper.DefaultStaleAfter
	}
	// A claim must outlive the slowest game of its batch, or the sweeper
	// hands live games to another drain.
	lifetime := coordinator.ClaimLifetime(cfg.batchSize, min(cfg.concurrency, cfg.poolSize),
		cfg.gameTimeout, cfg.commitTimeout)
	if cfg.staleAfter <= lifetime {
		return nil, fmt.Errorf("%w: stale claim age %v must exceed batch lifetime %v",
			ErrInvalidOption, cfg.staleAfter, lifetime)
	}

	c := &Client{
		store:   cfg.store,
		backing: cfg.store,
		locker:  cfg.locker,
		stats:   cfg.stats,
		logger:  cfg.logger,
	}

	if cfg.cacheSize > 0 {
		strategy, err := lru.New(cfg.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating cache: %w", err)
		}
		c.store = cachedstore.New(cfg.store, memory.New(strategy, cfg.stats))
	}

	c.pool = pool.New(cfg.factory,
		pool.WithSize(cfg.poolSize),
		pool.WithLogger(cfg.logger),
		pool.WithStats(cfg.stats),
	)
	c.coord = coordinator.New(c.store, c.pool,
		coordinator.WithBatchSize(cfg.batchSize),
		coordinator.WithConcurrency(cfg.concurrency),
		coordinator.WithPause(cfg.pause),
		coordinator.WithMaxAttempts(cfg.maxAttempts),
		coordinator.WithMaxStoreFailures(cfg.maxStoreFailures),
		coordinator.WithGameTimeout(cfg.gameTimeout),
		coordinator.WithCommitTimeout(cfg.commitTimeout),
		coordinator.WithLogger(cfg.logger),
		coordinator.WithStats(cfg.stats),
	)

	runner, err := job.New(c.coord, cfg.jobHistory,
		job.WithLocker(cfg.locker),
		job.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating job runner: %w", err)
	}
	c.runner = runner

	c.sweeper = sweeper.New(c.store,
		sweeper.WithInterval(cfg.sweepEvery),
		sweeper.WithStaleAfter(cfg.staleAfter),
		sweeper.WithLogger(cfg.logger),
		sweeper.WithStats(cfg.stats),
	)

	if is, ok := cfg.store.(store.IngestStore); ok {
		src := cfg.source
		if src == nil {
			src = chesscom.New(chesscom.WithLogger(cfg.logger))
		}
		c.ingest = ingest.New(is, src, ingest.WithLogger(cfg.logger))
	}

	codec, err := codecs.ByName(cfg.exportCodec)
	if err != nil {
		return nil, err
	}
	c.export = export.New(export.WithCodec(codec), export.WithLogger(cfg.logger))

	c.logger.Debug("client initialized",
		zap.Int("batchSize", cfg.batchSize),
		zap.Int("concurrency", cfg.concurrency),
		zap.Int("poolSize", cfg.poolSize),
		zap.Int("cacheSize", cfg.cacheSize),
	)
	return c, nil
}

// StartBatchAnalysis starts draining the backlog in the background.
// If a drain started by this client is still running, its job is returned
// with started set to false.
func (c *Client) StartBatchAnalysis(ctx context.Context) (j Job, started bool, err error) {
	if c.closed.Load() {
		return Job{}, false, ErrClosed
	}
	j, started, err = c.runner.Start(ctx)
	switch {
	case errors.Is(err, job.ErrBusy):
		return Job{}, false, ErrBusy
	case errors.Is(err, job.ErrClosed):
		return Job{}, false, ErrClosed
	}
	return j, started, err
}

// CurrentJob returns the most recently started job.
func (c *Client) CurrentJob() (Job, bool) {
	return c.runner.Current()
}

// Job returns a recent job by id.
func (c *Client) Job(id string) (Job, bool) {
	return c.runner.Get(id)
}

// Drain analyzes the backlog in the foreground until it is empty or ctx is
// cancelled. Cancellation stops further claims; games already claimed are
// finished and committed.
func (c *Client) Drain(ctx context.Context) (DrainSummary, error) {
	if c.closed.Load() {
		return DrainSummary{}, ErrClosed
	}
	lease, err := c.locker.TryLock(ctx)
	if errors.Is(err, lock.ErrHeld) {
		return DrainSummary{}, ErrBusy
	}
	if err != nil {
		return DrainSummary{}, err
	}
	defer func() {
		if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("releasing drain lock", zap.Error(err))
		}
	}()

	return c.coord.Drain(ctx)
}

// GetAnalysis returns the move analysis of a game.
// It returns ErrNotFound for unknown games and ErrNotAnalyzed for games
// still waiting for or undergoing analysis.
func (c *Client) GetAnalysis(ctx context.Context, gameID string) (*Analysis, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	g, err := c.store.Get(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", gameID, err)
	}
	if !g.MovesAnalyzed() {
		return nil, ErrNotAnalyzed
	}
	return toAnalysis(g), nil
}

// SweepStale returns orphaned claims to the backlog once.
func (c *Client) SweepStale(ctx context.Context) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return c.sweeper.SweepOnce(ctx)
}

// RunSweeper sweeps orphaned claims periodically until ctx is done.
func (c *Client) RunSweeper(ctx context.Context) error {
	return c.sweeper.Run(ctx)
}

// FetchAndStore imports the chess.com archives of username.
func (c *Client) FetchAndStore(ctx context.Context, username string) (IngestSummary, error) {
	if c.closed.Load() {
		return IngestSummary{}, ErrClosed
	}
	if c.ingest == nil {
		return IngestSummary{}, ErrUnsupported
	}
	sum, err := c.ingest.FetchAndStore(ctx, username)
	if errors.Is(err, ingest.ErrPlayerNotFound) {
		return sum, fmt.Errorf("%w: player %s", ErrNotFound, username)
	}
	return sum, err
}

// Player returns the stored player, fetching the chess.com profile on
// first sight.
func (c *Client) Player(ctx context.Context, username string) (*Player, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.ingest == nil {
		return nil, ErrUnsupported
	}
	p, err := c.ingest.GetOrCreatePlayer(ctx, username)
	if errors.Is(err, ingest.ErrPlayerNotFound) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	return toPlayer(p), nil
}

// PlayerGames returns the stored games of username. An unknown player is
// created from chess.com first.
func (c *Client) PlayerGames(ctx context.Context, username string) ([]GameSummary, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.ingest == nil {
		return nil, ErrUnsupported
	}
	games, err := c.ingest.Games(ctx, username)
	if errors.Is(err, ingest.ErrPlayerNotFound) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	out := make([]GameSummary, len(games))
	for i, g := range games {
		out[i] = toSummary(g)
	}
	return out, nil
}

// Export writes every analyzed game to dest: a directory,
// gs://bucket/prefix or s3://bucket/prefix.
func (c *Client) Export(ctx context.Context, dest string) (*ExportManifest, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	scanner, ok := c.backing.(store.Scanner)
	if !ok {
		return nil, ErrUnsupported
	}
	dst, err := export.OpenSink(ctx, dest)
	if err != nil {
		return nil, err
	}
	defer dst.Close()
	return c.export.Export(ctx, scanner, dst)
}

// Close stops any running drain from claiming more games, waits for it to
// commit, and releases the engines and the store.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	if err := c.runner.Close(context.Background()); err != nil {
		return fmt.Errorf("stopping jobs: %w", err)
	}
	if err := c.pool.Close(); err != nil {
		return fmt.Errorf("closing engines: %w", err)
	}
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// Store returns the storage backend used by this client.
func (c *Client) Store() store.Store {
	return c.backing
}
