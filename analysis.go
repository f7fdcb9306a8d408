package movegrade

import (
	"strconv"
	"strings"
	"time"

	"github.com/discochess/movegrade/internal/coordinator"
	"github.com/discochess/movegrade/internal/export"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/ingest"
	"github.com/discochess/movegrade/internal/job"
)

// Analysis is the move-by-move grading of one game.
type Analysis struct {
	GameID     string         `json:"game_id"`
	AnalyzedAt *time.Time     `json:"analyzed_at,omitempty"`
	Moves      []MoveAnalysis `json:"move_analysis"`
}

// MoveAnalysis grades a single ply.
type MoveAnalysis struct {
	// Ply is the 1-based half-move number.
	Ply int `json:"ply"`

	// Move is the move in UCI notation, e.g. "e2e4".
	Move string `json:"move"`

	// SAN is the move in standard algebraic notation, e.g. "e4".
	SAN string `json:"san,omitempty"`

	// EvalDiff is the evaluation change caused by the move in centipawns,
	// from the mover's point of view. Forced mates are scaled to ±10000.
	EvalDiff int `json:"eval_diff"`

	// Category is the quality label, e.g. "blunder" or "equal".
	Category string `json:"category"`

	// Symbol is the annotation glyph of the category, e.g. "??".
	Symbol string `json:"symbol"`
}

// Count returns how many moves carry the category label.
func (a *Analysis) Count(category string) int {
	n := 0
	for _, m := range a.Moves {
		if m.Category == category {
			n++
		}
	}
	return n
}

// Annotated returns the game as numbered SAN move text with annotation
// glyphs, e.g. "1. e4= e5= 2. Qh5⩲ Nc6=".
func (a *Analysis) Annotated() string {
	var b strings.Builder
	for i, m := range a.Moves {
		if i > 0 {
			b.WriteByte(' ')
		}
		if m.Ply%2 == 1 {
			b.WriteString(strconv.Itoa((m.Ply + 1) / 2))
			b.WriteString(". ")
		}
		if m.SAN != "" {
			b.WriteString(m.SAN)
		} else {
			b.WriteString(m.Move)
		}
		b.WriteString(m.Symbol)
	}
	return b.String()
}

// Player is a chess.com player known to the store.
type Player struct {
	Username    string    `json:"username"`
	PlayerID    int64     `json:"player_id"`
	Title       string    `json:"title,omitempty"`
	Status      string    `json:"status"`
	Name        string    `json:"name,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Location    string    `json:"location,omitempty"`
	Country     string    `json:"country"`
	Joined      time.Time `json:"joined"`
	LastOnline  time.Time `json:"last_online"`
	Followers   int       `json:"followers"`
	IsStreamer  bool      `json:"is_streamer"`
	TwitchURL   string    `json:"twitch_url,omitempty"`
	FIDE        int       `json:"fide,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// GameSummary describes a stored game without its transcript.
type GameSummary struct {
	ID          string    `json:"game_id"`
	URL         string    `json:"url,omitempty"`
	White       Side      `json:"white"`
	Black       Side      `json:"black"`
	EndTime     time.Time `json:"end_time"`
	TimeControl string    `json:"time_control,omitempty"`
	Tournament  string    `json:"tournament,omitempty"`
	Match       string    `json:"match,omitempty"`
	Accuracies  *Accuracy `json:"accuracies,omitempty"`
	Status      string    `json:"status"`
}

// Accuracy is chess.com's review score of both players, 0 to 100.
type Accuracy struct {
	White float64 `json:"white"`
	Black float64 `json:"black"`
}

// Side is one player of a game.
type Side struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Result   string `json:"result"`
}

type (
	// Job is a snapshot of a background analysis run.
	Job = job.Job

	// JobState is the lifecycle state of a job.
	JobState = job.State

	// DrainSummary is the outcome of a synchronous drain.
	DrainSummary = coordinator.Summary

	// IngestSummary reports an import of a player's archives.
	IngestSummary = ingest.Summary

	// ExportManifest describes a finished export.
	ExportManifest = export.Manifest
)

// Job states.
const (
	JobQueued    = job.Queued
	JobRunning   = job.Running
	JobSucceeded = job.Succeeded
	JobFailed    = job.Failed
)

// toAnalysis converts an internal Done game to a public Analysis.
func toAnalysis(g *game.Game) *Analysis {
	a := &Analysis{
		GameID:     g.ID,
		AnalyzedAt: g.AnalyzedAt,
		Moves:      make([]MoveAnalysis, len(g.Moves)),
	}
	for i, m := range g.Moves {
		a.Moves[i] = MoveAnalysis{
			Ply:      m.Ply,
			Move:     m.UCI,
			SAN:      m.SAN,
			EvalDiff: m.Delta,
			Category: m.Quality.String(),
			Symbol:   m.Quality.Symbol(),
		}
	}
	return a
}

func toPlayer(p *game.Player) *Player {
	return &Player{
		Username:    p.Username,
		PlayerID:    p.ChessComID,
		Title:       p.Title,
		Status:      p.Status,
		Name:        p.Name,
		Avatar:      p.Avatar,
		Location:    p.Location,
		Country:     p.Country,
		Joined:      p.Joined,
		LastOnline:  p.LastOnline,
		Followers:   p.Followers,
		IsStreamer:  p.IsStreamer,
		TwitchURL:   p.TwitchURL,
		FIDE:        p.FIDE,
		LastUpdated: p.LastUpdated,
	}
}

// toSummary converts an internal game to a public GameSummary.
func toSummary(g *game.Game) GameSummary {
	s := GameSummary{
		ID:          g.ID,
		URL:         g.URL,
		White:       Side(g.White),
		Black:       Side(g.Black),
		EndTime:     g.EndTime,
		TimeControl: g.TimeControl,
		Tournament:  g.Tournament,
		Match:       g.Match,
		Status:      string(g.State),
	}
	if g.Accuracy != nil {
		a := Accuracy(*g.Accuracy)
		s.Accuracies = &a
	}
	return s
}
