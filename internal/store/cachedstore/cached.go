package cachedstore

import (
	"context"

	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store wraps another Store and serves Get from the cache for games whose
// analysis is Done. Done games never change, so entries are never
// invalidated. Every other call goes to the underlying store.
type Store struct {
	store.Store
	backend Backend
}

// New creates a cached store wrapping underlying.
func New(underlying store.Store, backend Backend) *Store {
	return &Store{
		Store:   underlying,
		backend: backend,
	}
}

// Get returns a game, checking the cache first.
func (s *Store) Get(ctx context.Context, id string) (*game.Game, error) {
	if g, ok := s.backend.Get(id); ok {
		return g.Clone(), nil
	}

	g, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.MovesAnalyzed() {
		s.backend.Set(id, g.Clone())
	}
	return g, nil
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	return s.backend.Stats()
}
