// Package memory implements an in-memory cache backend.
package memory

import (
	"sync/atomic"

	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/stats"
	"github.com/discochess/movegrade/internal/store/cachedstore"
	"github.com/discochess/movegrade/internal/store/cachedstore/cachestrategy"
)

var _ cachedstore.Backend = (*Backend)(nil)

// Backend is a thread-safe in-memory cache backend. Thread safety comes
// from the strategy.
type Backend struct {
	strategy  cachestrategy.Strategy
	collector stats.Collector

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a memory backend with the given eviction strategy.
// The collector is optional.
func New(strategy cachestrategy.Strategy, collector stats.Collector) *Backend {
	if collector == nil {
		collector = stats.NewNoop()
	}
	return &Backend{
		strategy:  strategy,
		collector: collector,
	}
}

// Get returns a cached game.
func (b *Backend) Get(id string) (*game.Game, bool) {
	g, ok := b.strategy.Get(id)
	if !ok {
		b.misses.Add(1)
		b.collector.IncCounter(stats.MetricCacheMisses, 1)
		return nil, false
	}
	b.hits.Add(1)
	b.collector.IncCounter(stats.MetricCacheHits, 1)
	return g, true
}

// Set caches a game.
func (b *Backend) Set(id string, g *game.Game) {
	b.strategy.Add(id, g)
	b.collector.SetGauge(stats.MetricCacheSize, int64(b.strategy.Len()))
}

// Stats returns current cache statistics.
func (b *Backend) Stats() cachedstore.Stats {
	return cachedstore.Stats{
		Hits:   b.hits.Load(),
		Misses: b.misses.Load(),
		Size:   b.strategy.Len(),
	}
}
