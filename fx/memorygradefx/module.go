// Package memorygradefx provides an fx module for an in-memory movegrade client.
// Useful for testing and for trying the service without a database.
package memorygradefx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/movegrade"
	"github.com/discochess/movegrade/internal/engine"
	"github.com/discochess/movegrade/internal/ingest"
	"github.com/discochess/movegrade/internal/stats"
	"github.com/discochess/movegrade/internal/stats/logger"
	"github.com/discochess/movegrade/internal/store/memstore"
)

// Module provides an in-memory movegrade client.
// Requires a *zap.Logger and an engine.Factory to be provided. An
// ingest.Source may be supplied; chess.com is used otherwise.
var Module = fx.Module("memorygrade",
	fx.Provide(
		newStatsCollector,
		newMemStore,
		newClient,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("movegrade.stats"))
}

func newMemStore() *memstore.Store {
	return memstore.New()
}

// Params holds dependencies for creating the client.
type Params struct {
	fx.In

	Logger    *zap.Logger
	Collector stats.Collector
	Store     *memstore.Store
	Factory   engine.Factory
	Source    ingest.Source `optional:"true"`
	Lifecycle fx.Lifecycle
}

// The *memstore.Store is provided alongside the client for test setup.
func newClient(p Params) (*movegrade.Client, error) {
	opts := []movegrade.Option{
		movegrade.WithStore(p.Store),
		movegrade.WithEngineFactory(p.Factory),
		movegrade.WithStats(p.Collector),
		movegrade.WithLogger(p.Logger.Named("movegrade")),
	}
	if p.Source != nil {
		opts = append(opts, movegrade.WithSource(p.Source))
	}
	client, err := movegrade.New(opts...)
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
