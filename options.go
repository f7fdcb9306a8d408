package movegrade

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/coordinator"
	"github.com/discochess/movegrade/internal/engine"
	"github.com/discochess/movegrade/internal/engine/uciengine"
	"github.com/discochess/movegrade/internal/ingest"
	"github.com/discochess/movegrade/internal/job"
	"github.com/discochess/movegrade/internal/lock"
	"github.com/discochess/movegrade/internal/stats"
	"github.com/discochess/movegrade/internal/store"
	"github.com/discochess/movegrade/internal/sweeper"
)

// DefaultCacheSize is the number of analyzed games kept in memory.
const DefaultCacheSize = 1024

// Option configures a Client.
type Option interface {
	apply(*options)
}

// options holds the client configuration.
type options struct {
	store   store.Store
	factory engine.Factory
	source  ingest.Source
	locker  lock.Locker

	poolSize         int
	batchSize        int
	concurrency      int
	pause            time.Duration
	maxAttempts      int
	maxStoreFailures int
	gameTimeout      time.Duration
	commitTimeout    time.Duration

	cacheSize   int
	jobHistory  int
	sweepEvery  time.Duration
	staleAfter  time.Duration
	exportCodec string

	stats  stats.Collector
	logger *zap.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		batchSize:        coordinator.DefaultBatchSize,
		concurrency:      coordinator.DefaultConcurrency,
		pause:            coordinator.DefaultPause,
		maxAttempts:      coordinator.DefaultMaxAttempts,
		maxStoreFailures: coordinator.DefaultMaxStoreFailures,
		gameTimeout:      coordinator.DefaultGameTimeout,
		commitTimeout:    coordinator.DefaultCommitTimeout,
		cacheSize:        DefaultCacheSize,
		jobHistory:       job.DefaultHistory,
		sweepEvery:       sweeper.DefaultInterval,
		staleAfter:       sweeper.DefaultStaleAfter,
		stats:            stats.NewNoop(),
		logger:           zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithStore sets the game store. Required.
func WithStore(s store.Store) Option {
	return optionFunc(func(o *options) {
		o.store = s
	})
}

// WithEngineFactory sets how analysis engines are created. Required unless
// WithUCIEngine is used.
func WithEngineFactory(f engine.Factory) Option {
	return optionFunc(func(o *options) {
		o.factory = f
	})
}

// WithUCIEngine analyzes with a UCI engine process such as Stockfish.
func WithUCIEngine(cfg uciengine.Config) Option {
	return optionFunc(func(o *options) {
		o.factory = uciengine.Factory(cfg)
	})
}

// WithSource sets where games are imported from.
// If not set, the public chess.com API is used.
func WithSource(s ingest.Source) Option {
	return optionFunc(func(o *options) {
		o.source = s
	})
}

// WithLocker sets the lock that keeps drains exclusive.
// If not set, drains are exclusive within this process only.
func WithLocker(l lock.Locker) Option {
	return optionFunc(func(o *options) {
		o.locker = l
	})
}

// WithPoolSize sets the maximum number of engines.
// Default is the analysis concurrency.
func WithPoolSize(n int) Option {
	return optionFunc(func(o *options) {
		o.poolSize = n
	})
}

// WithBatchSize sets how many games are claimed per batch. Default is 10.
func WithBatchSize(n int) Option {
	return optionFunc(func(o *options) {
		o.batchSize = n
	})
}

// WithConcurrency sets how many games are analyzed at once. Default is 8.
func WithConcurrency(n int) Option {
	return optionFunc(func(o *options) {
		o.concurrency = n
	})
}

// WithPause sets the pause between batches. Default is one second.
func WithPause(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.pause = d
	})
}

// WithMaxAttempts sets how often a game may fail within one drain.
func WithMaxAttempts(n int) Option {
	return optionFunc(func(o *options) {
		o.maxAttempts = n
	})
}

// WithMaxStoreFailures sets how many consecutive store failures end a drain.
func WithMaxStoreFailures(n int) Option {
	return optionFunc(func(o *options) {
		o.maxStoreFailures = n
	})
}

// WithGameTimeout bounds the analysis of one game.
func WithGameTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.gameTimeout = d
	})
}

// WithCommitTimeout bounds the commit of one batch.
func WithCommitTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.commitTimeout = d
	})
}

// WithCacheSize sets how many analyzed games are cached. Zero disables the
// cache.
func WithCacheSize(n int) Option {
	return optionFunc(func(o *options) {
		o.cacheSize = n
	})
}

// WithJobHistory sets how many finished jobs stay queryable.
func WithJobHistory(n int) Option {
	return optionFunc(func(o *options) {
		o.jobHistory = n
	})
}

// WithSweep sets the stale sweep interval and claim age threshold.
func WithSweep(every, staleAfter time.Duration) Option {
	return optionFunc(func(o *options) {
		o.sweepEvery = every
		o.staleAfter = staleAfter
	})
}

// WithExportCodec sets the export compression by name: zstd, gzip or none.
func WithExportCodec(name string) Option {
	return optionFunc(func(o *options) {
		o.exportCodec = name
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
