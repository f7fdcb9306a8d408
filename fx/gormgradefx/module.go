// Package gormgradefx provides an fx module for a Postgres-backed movegrade
// client analyzing with a UCI engine.
package gormgradefx

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/movegrade"
	"github.com/discochess/movegrade/internal/chesscom"
	"github.com/discochess/movegrade/internal/codec/codecs"
	"github.com/discochess/movegrade/internal/config"
	"github.com/discochess/movegrade/internal/engine/uciengine"
	"github.com/discochess/movegrade/internal/lock"
	"github.com/discochess/movegrade/internal/lock/locallock"
	"github.com/discochess/movegrade/internal/lock/redislock"
	"github.com/discochess/movegrade/internal/stats"
	promstats "github.com/discochess/movegrade/internal/stats/prometheus"
	"github.com/discochess/movegrade/internal/store/gormstore"
)

// Module provides a *movegrade.Client backed by Postgres.
// Requires a *config.Config and a *zap.Logger to be provided.
var Module = fx.Module("gormgrade",
	fx.Provide(
		newCollector,
		newStore,
		newLocker,
		newClient,
	),
)

// Metrics is the handler serving the client's Prometheus metrics.
type Metrics http.Handler

type collectorResult struct {
	fx.Out

	Collector stats.Collector
	Metrics   Metrics
}

func newCollector() collectorResult {
	c := promstats.New(nil)
	return collectorResult{Collector: c, Metrics: c.Handler()}
}

func newStore(cfg *config.Config, log *zap.Logger, lc fx.Lifecycle) (*gormstore.Store, error) {
	codec, err := codecs.ByName(cfg.Store.Codec)
	if err != nil {
		return nil, err
	}
	st, err := gormstore.Open(cfg.Store.DSN,
		gormstore.WithCodec(codec),
		gormstore.WithLogger(log.Named("store")),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Migrate {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return st.Migrate(ctx)
			},
		})
	}
	return st, nil
}

// newLocker returns a Redis lock when redis.addr is set and a process-local
// lock otherwise.
func newLocker(cfg *config.Config, log *zap.Logger, lc fx.Lifecycle) lock.Locker {
	if cfg.Redis.Addr == "" {
		return locallock.New()
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return redislock.New(rdb,
		redislock.WithKey(cfg.Redis.LockKey),
		redislock.WithTTL(cfg.Redis.LockTTL),
		redislock.WithLogger(log.Named("lock")),
	)
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Collector stats.Collector
	Store     *gormstore.Store
	Locker    lock.Locker
	Lifecycle fx.Lifecycle
}

func newClient(p Params) (*movegrade.Client, error) {
	cfg := p.Config
	log := p.Logger.Named("movegrade")

	source := chesscom.New(
		chesscom.WithBaseURL(cfg.ChessCom.BaseURL),
		chesscom.WithHTTPClient(&http.Client{Timeout: cfg.ChessCom.Timeout}),
		chesscom.WithLogger(log),
	)

	client, err := movegrade.New(
		movegrade.WithStore(p.Store),
		movegrade.WithUCIEngine(uciengine.Config{
			Path:    cfg.Engine.Path,
			Depth:   cfg.Engine.Depth,
			HashMB:  cfg.Engine.HashMB,
			Threads: cfg.Engine.Threads,
			Logger:  log.Named("engine"),
		}),
		movegrade.WithSource(source),
		movegrade.WithLocker(p.Locker),
		movegrade.WithPoolSize(cfg.Engine.Pool),
		movegrade.WithBatchSize(cfg.Analysis.BatchSize),
		movegrade.WithConcurrency(cfg.Analysis.Concurrency),
		movegrade.WithPause(cfg.Analysis.Pause),
		movegrade.WithMaxAttempts(cfg.Analysis.MaxAttempts),
		movegrade.WithMaxStoreFailures(cfg.Analysis.MaxStoreFailures),
		movegrade.WithGameTimeout(cfg.Analysis.GameTimeout),
		movegrade.WithCommitTimeout(cfg.Analysis.CommitTimeout),
		movegrade.WithCacheSize(cfg.Cache.Size),
		movegrade.WithJobHistory(cfg.Jobs.History),
		movegrade.WithSweep(cfg.Sweep.Interval, cfg.Sweep.StaleAfter),
		movegrade.WithExportCodec(cfg.Export.Codec),
		movegrade.WithStats(p.Collector),
		movegrade.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
