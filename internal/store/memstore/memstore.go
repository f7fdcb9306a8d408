// Package memstore provides an in-memory store implementation for tests,
// demos and single-process deployments.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store"
)

// Compile-time checks.
var (
	_ store.Store       = (*Store)(nil)
	_ store.IngestStore = (*Store)(nil)
	_ store.Scanner     = (*Store)(nil)
)

// Store is an in-memory game store. All methods are safe for concurrent use.
type Store struct {
	now func() time.Time

	mu       sync.Mutex
	games    map[string]*game.Game
	order    []string
	players  map[string]*game.Player
	archives map[archiveKey]*game.Archive
	nextID   uint
	closed   bool

	claimErr  error
	commitErr error
}

type archiveKey struct {
	playerID uint
	url      string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		games:    make(map[string]*game.Game),
		players:  make(map[string]*game.Player),
		archives: make(map[archiveKey]*game.Archive),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a game as-is, replacing any game with the same id (for test setup).
func (s *Store) Put(g *game.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; !ok {
		s.order = append(s.order, g.ID)
	}
	c := g.Clone()
	if c.State == "" {
		c.State = game.Eligible
	}
	s.games[g.ID] = c
}

// FailClaims makes subsequent ClaimBatch calls return err. A nil err
// restores normal behavior.
func (s *Store) FailClaims(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimErr = err
}

// FailCommits makes subsequent Commit calls return err. A nil err restores
// normal behavior.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// Games returns a snapshot of every stored game in insertion order.
func (s *Store) Games() []*game.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*game.Game, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.games[id].Clone())
	}
	return out
}

// ClaimBatch claims up to req.Limit eligible games in insertion order.
func (s *Store) ClaimBatch(ctx context.Context, req store.ClaimRequest) ([]*game.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	now := s.now()
	var claimed []*game.Game
	for _, id := range s.order {
		if len(claimed) >= req.Limit {
			break
		}
		g := s.games[id]
		if !g.Claimable() || slices.Contains(req.Exclude, id) {
			continue
		}
		g.State = game.Processing
		g.ClaimedAt = &now
		g.ClaimCount++
		claimed = append(claimed, g.Clone())
	}
	return claimed, nil
}

// Begin starts a batch.
func (s *Store) Begin(ctx context.Context) (store.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return &batch{s: s}, nil
}

// Release returns Processing games to Eligible.
func (s *Store) Release(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for _, id := range ids {
		if g, ok := s.games[id]; ok && g.IsProcessing() {
			g.State = game.Eligible
			g.ClaimedAt = nil
		}
	}
	return nil
}

// SweepStale resets games claimed more than olderThan ago.
func (s *Store) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	cutoff := s.now().Add(-olderThan)
	n := 0
	for _, g := range s.games {
		if g.IsProcessing() && g.ClaimedAt != nil && g.ClaimedAt.Before(cutoff) {
			g.State = game.Eligible
			g.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

// Get returns a copy of a game.
func (s *Store) Get(ctx context.Context, id string) (*game.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g.Clone(), nil
}

// ScanAnalyzed calls fn for each Done game in insertion order.
func (s *Store) ScanAnalyzed(ctx context.Context, fn func(*game.Game) error) error {
	for _, g := range s.Games() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !g.MovesAnalyzed() {
			continue
		}
		if err := fn(g); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPlayer creates or updates a player by username.
func (s *Store) UpsertPlayer(ctx context.Context, p *game.Player) (*game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	if existing, ok := s.players[p.Username]; ok {
		c.ID = existing.ID
	} else {
		s.nextID++
		c.ID = s.nextID
	}
	s.players[p.Username] = &c
	out := c
	return &out, nil
}

// Player returns a player by username.
func (s *Store) Player(ctx context.Context, username string) (*game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *p
	return &out, nil
}

// Archive returns an archive by player and url.
func (s *Store) Archive(ctx context.Context, playerID uint, url string) (*game.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.archives[archiveKey{playerID, url}]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *a
	return &out, nil
}

// SaveArchive creates or updates an archive.
func (s *Store) SaveArchive(ctx context.Context, a *game.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := archiveKey{a.PlayerID, a.URL}
	if existing, ok := s.archives[key]; ok {
		a.ID = existing.ID
	} else if a.ID == 0 {
		s.nextID++
		a.ID = s.nextID
	}
	c := *a
	s.archives[key] = &c
	return nil
}

// InsertGames stores games that do not exist yet.
func (s *Store) InsertGames(ctx context.Context, games []*game.Game) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	n := 0
	for _, g := range games {
		if _, ok := s.games[g.ID]; ok {
			continue
		}
		c := g.Clone()
		c.State = game.Eligible
		c.ClaimedAt = nil
		c.ClaimCount = 0
		c.Moves = nil
		s.games[g.ID] = c
		s.order = append(s.order, g.ID)
		n++
	}
	return n, nil
}

// ListGames returns the games of a player ordered by end time.
func (s *Store) ListGames(ctx context.Context, playerID uint) ([]*game.Game, error) {
	var out []*game.Game
	for _, g := range s.Games() {
		if g.PlayerID == playerID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndTime.Before(out[j].EndTime)
	})
	return out, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// batch buffers results until Commit.
type batch struct {
	s       *Store
	results []game.Result
	done    bool
}

func (b *batch) WriteResult(ctx context.Context, r game.Result) error {
	if err := r.Validate(); err != nil {
		return err
	}

	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.done {
		return store.ErrBatchDone
	}
	if _, ok := b.s.games[r.GameID]; !ok {
		return store.ErrNotFound
	}
	b.results = append(b.results, r)
	return nil
}

func (b *batch) Commit(ctx context.Context) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.done {
		return store.ErrBatchDone
	}
	b.done = true
	if b.s.commitErr != nil {
		return b.s.commitErr
	}

	now := b.s.now()
	for _, r := range b.results {
		g := b.s.games[r.GameID]
		apply(g, r, now)
	}
	return nil
}

func (b *batch) Rollback(ctx context.Context) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.done {
		return store.ErrBatchDone
	}
	b.done = true
	b.results = nil
	return nil
}

// apply moves g to the state carried by r. Done games are terminal.
func apply(g *game.Game, r game.Result, now time.Time) {
	if g.MovesAnalyzed() {
		return
	}
	if !r.Succeeded() {
		if g.IsProcessing() {
			g.State = game.Eligible
			g.ClaimedAt = nil
		}
		return
	}
	g.State = game.Done
	g.ClaimedAt = nil
	g.Moves = slices.Clone(r.Moves)
	g.AnalyzedAt = &now
}

