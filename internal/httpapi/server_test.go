package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/discochess/movegrade"
)

type fakeService struct {
	job      movegrade.Job
	hasJob   bool
	started  bool
	startErr error

	analyses map[string]*movegrade.Analysis
	pending  map[string]bool

	players  map[string]*movegrade.Player

	summary  movegrade.IngestSummary
	games    []movegrade.GameSummary
	fetchErr error
}

func (f *fakeService) StartBatchAnalysis(ctx context.Context) (movegrade.Job, bool, error) {
	return f.job, f.started, f.startErr
}

func (f *fakeService) CurrentJob() (movegrade.Job, bool) { return f.job, f.hasJob }

func (f *fakeService) Job(id string) (movegrade.Job, bool) {
	if f.hasJob && f.job.ID == id {
		return f.job, true
	}
	return movegrade.Job{}, false
}

func (f *fakeService) GetAnalysis(ctx context.Context, id string) (*movegrade.Analysis, error) {
	if a, ok := f.analyses[id]; ok {
		return a, nil
	}
	if f.pending[id] {
		return nil, movegrade.ErrNotAnalyzed
	}
	return nil, fmt.Errorf("%w: game %s", movegrade.ErrNotFound, id)
}

func (f *fakeService) Player(ctx context.Context, username string) (*movegrade.Player, error) {
	if p, ok := f.players[username]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: player %s", movegrade.ErrNotFound, username)
}

func (f *fakeService) FetchAndStore(ctx context.Context, username string) (movegrade.IngestSummary, error) {
	return f.summary, f.fetchErr
}

func (f *fakeService) PlayerGames(ctx context.Context, username string) ([]movegrade.GameSummary, error) {
	return f.games, f.fetchErr
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestStartAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		started bool
		want    string
	}{
		{"new job", true, "move analysis started in the background"},
		{"already running", false, "move analysis already running"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{job: movegrade.Job{ID: "j1", State: movegrade.JobRunning}, started: tt.started}
			rec := do(t, New(svc).Handler(), http.MethodPost, "/api/v1/analyze-moves")

			if rec.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want 202", rec.Code)
			}
			got := decode[startResponse](t, rec)
			if got.Message != tt.want || got.Started != tt.started || got.Job.ID != "j1" {
				t.Errorf("response = %+v", got)
			}
		})
	}
}

func TestStartAnalysis_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{movegrade.ErrBusy, http.StatusConflict},
		{movegrade.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc := &fakeService{startErr: tt.err}
		rec := do(t, New(svc).Handler(), http.MethodPost, "/api/v1/analyze-moves")
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestJobs(t *testing.T) {
	svc := &fakeService{}
	h := New(svc).Handler()

	if rec := do(t, h, http.MethodGet, "/api/v1/analysis/jobs/current"); rec.Code != http.StatusNotFound {
		t.Errorf("current with no job: status = %d, want 404", rec.Code)
	}

	svc.job = movegrade.Job{ID: "j7", State: movegrade.JobSucceeded, Analyzed: 3}
	svc.hasJob = true

	rec := do(t, h, http.MethodGet, "/api/v1/analysis/jobs/current")
	if rec.Code != http.StatusOK {
		t.Fatalf("current: status = %d", rec.Code)
	}
	if got := decode[movegrade.Job](t, rec); got.ID != "j7" || got.Analyzed != 3 {
		t.Errorf("current = %+v", got)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/analysis/jobs/j7"); rec.Code != http.StatusOK {
		t.Errorf("job j7: status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/analysis/jobs/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown job: status = %d, want 404", rec.Code)
	}
}

func TestGameAnalysis(t *testing.T) {
	svc := &fakeService{
		analyses: map[string]*movegrade.Analysis{
			"g1": {GameID: "g1", Moves: []movegrade.MoveAnalysis{
				{Ply: 1, Move: "e2e4", SAN: "e4", EvalDiff: 5, Category: "equal", Symbol: "="},
			}},
		},
		pending: map[string]bool{"g2": true},
	}
	h := New(svc).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/game-move-analysis/g1")
	if rec.Code != http.StatusOK {
		t.Fatalf("analyzed: status = %d", rec.Code)
	}
	a := decode[movegrade.Analysis](t, rec)
	if a.GameID != "g1" || len(a.Moves) != 1 || a.Moves[0].Symbol != "=" {
		t.Errorf("analysis = %+v", a)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/game-move-analysis/g2")
	if rec.Code != http.StatusOK {
		t.Fatalf("pending: status = %d", rec.Code)
	}
	if got := decode[notAnalyzedResponse](t, rec); got.Status != "not_analyzed" || got.GameID != "g2" {
		t.Errorf("pending = %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/game-move-analysis/g3")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown: status = %d, want 404", rec.Code)
	}
	if got := decode[errorResponse](t, rec); !strings.Contains(got.Error, "g3") {
		t.Errorf("error = %q", got.Error)
	}
}

func TestPlayers(t *testing.T) {
	svc := &fakeService{
		summary: movegrade.IngestSummary{Player: "hikaru", Archives: 2, Games: 10},
	}
	h := New(svc).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/players/hikaru/fetch-and-store-games")
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: status = %d", rec.Code)
	}
	if got := decode[movegrade.IngestSummary](t, rec); got.Games != 10 {
		t.Errorf("summary = %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/players/hikaru/games")
	if rec.Code != http.StatusOK {
		t.Fatalf("games: status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("games body = %s, want []", body)
	}

	svc.fetchErr = fmt.Errorf("%w: player ghost", movegrade.ErrNotFound)
	if rec := do(t, h, http.MethodPost, "/api/v1/players/ghost/fetch-and-store-games"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown player: status = %d, want 404", rec.Code)
	}
	svc.fetchErr = movegrade.ErrUnsupported
	if rec := do(t, h, http.MethodGet, "/api/v1/players/ghost/games"); rec.Code != http.StatusNotImplemented {
		t.Errorf("unsupported: status = %d, want 501", rec.Code)
	}
}

func TestPlayerProfile(t *testing.T) {
	svc := &fakeService{players: map[string]*movegrade.Player{
		"hikaru": {Username: "hikaru", PlayerID: 15448422, Title: "GM", Country: "https://api.chess.com/pub/country/US"},
	}}
	h := New(svc).Handler()

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rec := do(t, h, method, "/api/v1/players/hikaru")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", method, rec.Code)
		}
		if got := decode[movegrade.Player](t, rec); got.PlayerID != 15448422 || got.Title != "GM" {
			t.Errorf("%s: player = %+v", method, got)
		}

		if rec := do(t, h, method, "/api/v1/players/ghost"); rec.Code != http.StatusNotFound {
			t.Errorf("%s unknown: status = %d, want 404", method, rec.Code)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("movegrade_batches_total 1\n"))
	})

	h := New(&fakeService{}).Handler()
	if rec := do(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler: status = %d, want 404", rec.Code)
	}

	h = New(&fakeService{}, WithMetrics(metrics)).Handler()
	rec := do(t, h, http.MethodGet, "/metrics")
	if !strings.Contains(rec.Body.String(), "movegrade_batches_total") {
		t.Errorf("metrics body = %q", rec.Body.String())
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := New(&fakeService{}, WithLogger(zap.New(core))).Handler()

	do(t, h, http.MethodGet, "/api/v1/analysis/jobs/current")

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d access log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusNotFound) {
		t.Errorf("status field = %v", fields["status"])
	}
	if fields["path"] != "/api/v1/analysis/jobs/current" {
		t.Errorf("path field = %v", fields["path"])
	}
	if fields["rid"] == "" {
		t.Error("rid field empty")
	}
}

func TestServerErrorLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := New(&fakeService{startErr: errors.New("db down")}, WithLogger(zap.New(core))).Handler()

	do(t, h, http.MethodPost, "/api/v1/analyze-moves")

	if n := logs.FilterMessage("request failed").Len(); n != 1 {
		t.Errorf("got %d error entries, want 1", n)
	}
}
