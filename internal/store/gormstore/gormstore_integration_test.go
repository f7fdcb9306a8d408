//go:build integration

package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/discochess/movegrade/internal/classify"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store"
)

// openTest connects to MOVEGRADE_TEST_DSN and starts from empty tables.
func openTest(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dsn := os.Getenv("MOVEGRADE_TEST_DSN")
	if dsn == "" {
		t.Skip("MOVEGRADE_TEST_DSN not set")
	}
	s, err := Open(dsn, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := s.db.Exec("TRUNCATE games, archives, players RESTART IDENTITY").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func seedGames(t *testing.T, s *Store, n int) {
	t.Helper()
	games := make([]*game.Game, n)
	for i := range games {
		games[i] = &game.Game{ID: fmt.Sprintf("g%03d", i), PlayerID: 1, PGN: "1. e4 e5 *"}
	}
	inserted, err := s.InsertGames(context.Background(), games)
	if err != nil {
		t.Fatalf("InsertGames() error = %v", err)
	}
	if inserted != n {
		t.Fatalf("inserted %d games, want %d", inserted, n)
	}
}

func TestIntegration_ClaimExclusive(t *testing.T) {
	s := openTest(t)
	seedGames(t, s, 60)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				games, err := s.ClaimBatch(ctx, store.ClaimRequest{Limit: 7})
				if err != nil {
					t.Errorf("ClaimBatch() error = %v", err)
					return
				}
				if len(games) == 0 {
					return
				}
				mu.Lock()
				for _, g := range games {
					seen[g.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 60 {
		t.Errorf("claimed %d distinct games, want 60", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("game %s claimed %d times", id, n)
		}
	}
}

func TestIntegration_ClaimExclude(t *testing.T) {
	s := openTest(t)
	seedGames(t, s, 3)
	ctx := context.Background()

	games, err := s.ClaimBatch(ctx, store.ClaimRequest{Limit: 10, Exclude: []string{"g001"}})
	if err != nil {
		t.Fatalf("ClaimBatch() error = %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("claimed %d games, want 2", len(games))
	}
	for _, g := range games {
		if g.ID == "g001" {
			t.Error("excluded game claimed")
		}
		if !g.IsProcessing() || g.ClaimCount != 1 {
			t.Errorf("claimed game %+v not processing", g)
		}
	}
}

func TestIntegration_CommitAndIdempotence(t *testing.T) {
	s := openTest(t)
	seedGames(t, s, 2)
	ctx := context.Background()

	if _, err := s.ClaimBatch(ctx, store.ClaimRequest{Limit: 2}); err != nil {
		t.Fatal(err)
	}
	moves := []game.Move{{Ply: 1, UCI: "e2e4", SAN: "e4", Delta: 10, Quality: classify.Equal}}

	b, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WriteResult(ctx, game.Result{GameID: "g000", Moves: moves}); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}
	if err := b.WriteResult(ctx, game.Result{GameID: "g001", Err: errors.New("boom")}); err != nil {
		t.Fatalf("WriteResult(failure) error = %v", err)
	}
	if err := b.WriteResult(ctx, game.Result{GameID: "missing", Moves: moves}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("WriteResult(missing) error = %v, want ErrNotFound", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := b.Commit(ctx); !errors.Is(err, store.ErrBatchDone) {
		t.Errorf("second Commit() error = %v, want ErrBatchDone", err)
	}

	done, err := s.Get(ctx, "g000")
	if err != nil {
		t.Fatal(err)
	}
	if !done.MovesAnalyzed() || len(done.Moves) != 1 || done.Moves[0] != moves[0] {
		t.Errorf("g000 = %+v, want done with moves", done)
	}
	failed, _ := s.Get(ctx, "g001")
	if !failed.Claimable() || failed.Moves != nil {
		t.Errorf("g001 = %+v, want eligible without moves", failed)
	}

	// Rewriting a Done game leaves it untouched.
	b, _ = s.Begin(ctx)
	if err := b.WriteResult(ctx, game.Result{GameID: "g000", Moves: moves}); err != nil {
		t.Errorf("rewrite WriteResult() error = %v", err)
	}
	if err := b.WriteResult(ctx, game.Result{GameID: "g000", Err: errors.New("late")}); err != nil {
		t.Errorf("late failure WriteResult() error = %v", err)
	}
	_ = b.Commit(ctx)
	again, _ := s.Get(ctx, "g000")
	if !again.MovesAnalyzed() {
		t.Errorf("g000 state = %s after rewrite, want done", again.State)
	}
}

func TestIntegration_Rollback(t *testing.T) {
	s := openTest(t)
	seedGames(t, s, 1)
	ctx := context.Background()

	_, _ = s.ClaimBatch(ctx, store.ClaimRequest{Limit: 1})
	b, _ := s.Begin(ctx)
	_ = b.WriteResult(ctx, game.Result{GameID: "g000", Moves: []game.Move{}})
	if err := b.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	g, _ := s.Get(ctx, "g000")
	if !g.IsProcessing() {
		t.Errorf("state after rollback = %s, want processing", g.State)
	}

	if err := s.Release(ctx, []string{"g000"}); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	g, _ = s.Get(ctx, "g000")
	if !g.Claimable() {
		t.Errorf("state after release = %s, want eligible", g.State)
	}
}

func TestIntegration_SweepStale(t *testing.T) {
	now := time.Now().UTC()
	clock := now
	s := openTest(t, WithClock(func() time.Time { return clock }))
	seedGames(t, s, 2)
	ctx := context.Background()

	_, _ = s.ClaimBatch(ctx, store.ClaimRequest{Limit: 1})
	clock = now.Add(20 * time.Minute)
	_, _ = s.ClaimBatch(ctx, store.ClaimRequest{Limit: 1})

	n, err := s.SweepStale(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("SweepStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d games, want 1", n)
	}
	g, _ := s.Get(ctx, "g000")
	if !g.Claimable() {
		t.Errorf("stale game state = %s, want eligible", g.State)
	}
}

func TestIntegration_Ingest(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	p, err := s.UpsertPlayer(ctx, &game.Player{Username: "alice", Followers: 1})
	if err != nil {
		t.Fatalf("UpsertPlayer() error = %v", err)
	}
	p2, err := s.UpsertPlayer(ctx, &game.Player{Username: "alice", Followers: 5})
	if err != nil {
		t.Fatal(err)
	}
	if p2.ID != p.ID || p2.Followers != 5 {
		t.Errorf("upsert = %+v, want id %d with 5 followers", p2, p.ID)
	}

	a := &game.Archive{PlayerID: p.ID, Year: 2024, Month: 3, URL: "https://api.chess.com/pub/player/alice/games/2024/03"}
	if err := s.SaveArchive(ctx, a); err != nil {
		t.Fatalf("SaveArchive() error = %v", err)
	}
	a.Downloaded = true
	if err := s.SaveArchive(ctx, a); err != nil {
		t.Fatal(err)
	}
	got, err := s.Archive(ctx, p.ID, a.URL)
	if err != nil || !got.Downloaded {
		t.Errorf("Archive() = %+v, %v", got, err)
	}

	games := []*game.Game{
		{ID: "1", PlayerID: p.ID, PGN: "*", EndTime: time.Unix(200, 0)},
		{ID: "2", PlayerID: p.ID, PGN: "*", EndTime: time.Unix(100, 0)},
	}
	if n, _ := s.InsertGames(ctx, games); n != 2 {
		t.Errorf("first insert = %d, want 2", n)
	}
	if n, _ := s.InsertGames(ctx, games); n != 0 {
		t.Errorf("second insert = %d, want 0", n)
	}
	list, err := s.ListGames(ctx, p.ID)
	if err != nil || len(list) != 2 || list[0].ID != "2" {
		t.Errorf("ListGames() = %v, %v", list, err)
	}

	if _, err := s.Player(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Player(nobody) error = %v, want ErrNotFound", err)
	}
}
