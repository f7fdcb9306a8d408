// Package lru implements an LRU cache eviction strategy.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store/cachedstore/cachestrategy"
)

var _ cachestrategy.Strategy = (*Strategy)(nil)

// Strategy evicts the least recently used game.
type Strategy struct {
	cache *lru.Cache[string, *game.Game]
}

// New creates an LRU strategy holding at most capacity games.
func New(capacity int) (*Strategy, error) {
	c, err := lru.New[string, *game.Game](capacity)
	if err != nil {
		return nil, err
	}
	return &Strategy{cache: c}, nil
}

// Get returns a cached game and marks it recently used.
func (s *Strategy) Get(key string) (*game.Game, bool) {
	return s.cache.Get(key)
}

// Add caches a game and reports whether an eviction occurred.
func (s *Strategy) Add(key string, value *game.Game) bool {
	return s.cache.Add(key, value)
}

// Len returns the number of cached games.
func (s *Strategy) Len() int {
	return s.cache.Len()
}
