package chesscom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/player/alice", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"username":"alice","player_id":42,"status":"premium","country":"https://api.chess.com/pub/country/US","joined":1500000000,"last_online":1700000000,"followers":12,"is_streamer":true}`)
	})
	mux.HandleFunc("/player/alice/games/archives", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"archives":["%[1]s/player/alice/games/2024/02","%[1]s/player/alice/games/2024/03"]}`, "http://"+r.Host)
	})
	mux.HandleFunc("/player/alice/games/2024/03", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"games":[{"url":"https://www.chess.com/game/live/104857600","pgn":"1. e4 e5 *","time_control":"600","end_time":1709294400,"rules":"chess","white":{"username":"alice","rating":1500,"result":"win"},"black":{"username":"bob","rating":1480,"result":"resigned"},"accuracies":{"white":91.5,"black":78.25},"tournament":"https://api.chess.com/pub/tournament/titled-tuesday"}]}`)
	})
	mux.HandleFunc("/player/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Player(t *testing.T) {
	srv := newServer(t)
	c := New(WithBaseURL(srv.URL))

	p, err := c.Player(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Player() error = %v", err)
	}
	if p.Username != "alice" || p.PlayerID != 42 || p.Followers != 12 || !p.IsStreamer {
		t.Errorf("Player() = %+v", p)
	}
}

func TestClient_PlayerErrors(t *testing.T) {
	srv := newServer(t)
	c := New(WithBaseURL(srv.URL))

	tests := []struct {
		username string
		want     error
	}{
		{"nobody", ErrNotFound},
		{"broken", ErrStatus},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			if _, err := c.Player(context.Background(), tt.username); !errors.Is(err, tt.want) {
				t.Errorf("Player(%q) error = %v, want %v", tt.username, err, tt.want)
			}
		})
	}
}

func TestClient_ArchivesAndGames(t *testing.T) {
	srv := newServer(t)
	c := New(WithBaseURL(srv.URL))
	ctx := context.Background()

	archives, err := c.Archives(ctx, "alice")
	if err != nil {
		t.Fatalf("Archives() error = %v", err)
	}
	if len(archives) != 2 {
		t.Fatalf("Archives() = %v, want 2 urls", archives)
	}

	games, err := c.ArchiveGames(ctx, archives[1])
	if err != nil {
		t.Fatalf("ArchiveGames() error = %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("ArchiveGames() = %d games, want 1", len(games))
	}
	g := games[0]
	if g.ID() != "104857600" || g.White.Rating != 1500 || g.Black.Result != "resigned" {
		t.Errorf("game = %+v", g)
	}
	if g.Accuracies == nil || g.Accuracies.White != 91.5 || g.Accuracies.Black != 78.25 {
		t.Errorf("accuracies = %+v", g.Accuracies)
	}
	if g.Tournament == "" || g.Match != "" {
		t.Errorf("tournament = %q, match = %q", g.Tournament, g.Match)
	}

	if _, err := c.ArchiveGames(ctx, archives[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("ArchiveGames(missing) error = %v, want ErrNotFound", err)
	}
}

func TestArchiveMonth(t *testing.T) {
	tests := []struct {
		url         string
		year, month int
		wantErr     bool
	}{
		{"https://api.chess.com/pub/player/alice/games/2024/03", 2024, 3, false},
		{"https://api.chess.com/pub/player/alice/games/2023/12/", 2023, 12, false},
		{"https://api.chess.com/pub/player/alice/games/2023/13", 0, 0, true},
		{"archives", 0, 0, true},
	}
	for _, tt := range tests {
		y, m, err := ArchiveMonth(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ArchiveMonth(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if y != tt.year || m != tt.month {
			t.Errorf("ArchiveMonth(%q) = %d/%d, want %d/%d", tt.url, y, m, tt.year, tt.month)
		}
	}
}
