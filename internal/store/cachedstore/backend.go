// Package cachedstore caches finished analyses in front of a Store.
package cachedstore

import "github.com/discochess/movegrade/internal/game"

// Backend stores cached games.
// Implementations choose storage and eviction (see cachestrategy).
type Backend interface {
	// Get returns a cached game. Returns nil, false if not found.
	Get(id string) (*game.Game, bool)

	// Set caches a game.
	Set(id string, g *game.Game)

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int // Current number of entries
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
