package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/discochess/movegrade/internal/chesscom"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store/memstore"
)

// fakeSource serves fixed archives and counts fetches.
type fakeSource struct {
	profile  *chesscom.Profile
	archives []string
	games    map[string][]chesscom.Game
	failing  map[string]bool

	mu      sync.Mutex
	fetched map[string]int
}

func (f *fakeSource) Player(ctx context.Context, username string) (*chesscom.Profile, error) {
	if f.profile == nil || f.profile.Username != username {
		return nil, chesscom.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeSource) Archives(ctx context.Context, username string) ([]string, error) {
	return f.archives, nil
}

func (f *fakeSource) ArchiveGames(ctx context.Context, archiveURL string) ([]chesscom.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetched == nil {
		f.fetched = make(map[string]int)
	}
	f.fetched[archiveURL]++
	if f.failing[archiveURL] {
		return nil, chesscom.ErrStatus
	}
	return f.games[archiveURL], nil
}

func (f *fakeSource) fetches(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[u]
}

const (
	febURL = "https://api.chess.com/pub/player/alice/games/2024/02"
	marURL = "https://api.chess.com/pub/player/alice/games/2024/03"
)

func archiveGame(id string, end int64) chesscom.Game {
	return chesscom.Game{
		URL:     "https://www.chess.com/game/live/" + id,
		PGN:     fmt.Sprintf("[Event \"%s\"]\n\n1. e4 e5 *", id),
		EndTime: end,
		White:   chesscom.Side{Username: "alice", Rating: 1500, Result: "win"},
		Black:   chesscom.Side{Username: "bob", Rating: 1400, Result: "resigned"},
	}
}

func reviewedGame(id string, end int64) chesscom.Game {
	g := archiveGame(id, end)
	g.Accuracies = &chesscom.Accuracies{White: 88.1, Black: 72.4}
	g.Match = "https://api.chess.com/pub/match/12345"
	return g
}

func newFixture() *fakeSource {
	return &fakeSource{
		profile:  &chesscom.Profile{Username: "alice", PlayerID: 42, Status: "basic", Joined: 1500000000},
		archives: []string{febURL, marURL},
		games: map[string][]chesscom.Game{
			febURL: {archiveGame("100", 1707000000), archiveGame("101", 1707100000)},
			marURL: {reviewedGame("200", 1709500000)},
		},
	}
}

// march is inside the current-month archive.
func march() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }

func TestService_FetchAndStore(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	src := newFixture()
	svc := New(st, src, WithClock(march))

	sum, err := svc.FetchAndStore(ctx, "alice")
	if err != nil {
		t.Fatalf("FetchAndStore() error = %v", err)
	}
	if sum.Archives != 2 || sum.Games != 3 {
		t.Errorf("summary = %+v, want 2 archives and 3 games", sum)
	}

	p, err := st.Player(ctx, "alice")
	if err != nil {
		t.Fatalf("player not stored: %v", err)
	}
	if p.ChessComID != 42 || !p.Joined.Equal(time.Unix(1500000000, 0)) {
		t.Errorf("player = %+v", p)
	}

	games, _ := svc.Games(ctx, "alice")
	if len(games) != 3 {
		t.Fatalf("stored %d games, want 3", len(games))
	}
	if games[0].ID != "100" || !games[0].Claimable() || games[0].White.Rating != 1500 {
		t.Errorf("first game = %+v", games[0])
	}
	if games[0].Accuracy != nil {
		t.Errorf("unreviewed game has accuracy %+v", games[0].Accuracy)
	}
	if a := games[2].Accuracy; a == nil || a.White != 88.1 || games[2].Match == "" {
		t.Errorf("reviewed game = %+v", games[2])
	}
	if !games[0].StartTime.Equal(games[0].EndTime) {
		t.Errorf("missing start time not defaulted to end time: %v", games[0].StartTime)
	}

	feb, err := st.Archive(ctx, p.ID, febURL)
	if err != nil || !feb.Downloaded || feb.IsCurrentMonth || feb.LastDownload == nil {
		t.Errorf("february archive = %+v, %v", feb, err)
	}
	mar, _ := st.Archive(ctx, p.ID, marURL)
	if !mar.IsCurrentMonth {
		t.Errorf("march archive not flagged current: %+v", mar)
	}
}

func TestService_FetchAndStoreAgain(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	src := newFixture()
	svc := New(st, src, WithClock(march))

	if _, err := svc.FetchAndStore(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	src.games[marURL] = append(src.games[marURL], archiveGame("201", 1709600000))

	sum, err := svc.FetchAndStore(ctx, "alice")
	if err != nil {
		t.Fatalf("second FetchAndStore() error = %v", err)
	}
	if sum.Archives != 1 || sum.Skipped != 1 || sum.Games != 1 {
		t.Errorf("second summary = %+v, want 1 archive, 1 skipped, 1 new game", sum)
	}
	if n := src.fetches(febURL); n != 1 {
		t.Errorf("february fetched %d times, want 1", n)
	}
	if n := src.fetches(marURL); n != 2 {
		t.Errorf("march fetched %d times, want 2", n)
	}
}

func TestService_StoredGamesAreImmutable(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	src := newFixture()
	svc := New(st, src, WithClock(march))

	if _, err := svc.FetchAndStore(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	st.Put(&game.Game{ID: "200", PlayerID: 1, PGN: "1. e4 e5 *", State: game.Done, Moves: []game.Move{}})

	if _, err := svc.FetchAndStore(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	g, _ := st.Get(ctx, "200")
	if !g.MovesAnalyzed() {
		t.Errorf("re-import changed analyzed game to %s", g.State)
	}
}

func TestService_PreviousCurrentMonthRefreshedOnce(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	src := newFixture()
	now := march()
	svc := New(st, src, WithClock(func() time.Time { return now }))

	if _, err := svc.FetchAndStore(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	now = time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if _, err := svc.FetchAndStore(ctx, "alice"); err != nil {
			t.Fatal(err)
		}
	}
	if n := src.fetches(marURL); n != 2 {
		t.Errorf("march fetched %d times, want 2", n)
	}
}

func TestService_ArchiveFailure(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	src := newFixture()
	src.failing = map[string]bool{febURL: true}
	svc := New(st, src, WithClock(march))

	sum, err := svc.FetchAndStore(ctx, "alice")
	if err != nil {
		t.Fatalf("FetchAndStore() error = %v", err)
	}
	if sum.Failed != 1 || sum.Archives != 1 || sum.Games != 1 {
		t.Errorf("summary = %+v", sum)
	}
	p, _ := st.Player(ctx, "alice")
	if a, err := st.Archive(ctx, p.ID, febURL); err == nil && a.Downloaded {
		t.Error("failed archive marked downloaded")
	}
}

func TestService_GamesCreatesPlayer(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	src := newFixture()
	svc := New(st, src)

	games, err := svc.Games(ctx, "alice")
	if err != nil {
		t.Fatalf("Games() error = %v", err)
	}
	if len(games) != 0 {
		t.Errorf("Games() = %d games, want none before an import", len(games))
	}
	p, err := st.Player(ctx, "alice")
	if err != nil || p.ChessComID != 42 {
		t.Errorf("stored player = %+v, %v", p, err)
	}
	if src.fetches(febURL) != 0 {
		t.Error("Games() fetched an archive")
	}
}

func TestService_UnknownPlayer(t *testing.T) {
	svc := New(memstore.New(), newFixture())

	if _, err := svc.FetchAndStore(context.Background(), "nobody"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("FetchAndStore() error = %v, want ErrPlayerNotFound", err)
	}
	if _, err := svc.Games(context.Background(), "nobody"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("Games() error = %v, want ErrPlayerNotFound", err)
	}
}
