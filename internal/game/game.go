// Package game defines the persisted entities: players, monthly archives,
// games and their move analysis.
package game

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/discochess/movegrade/internal/classify"
)

// State is the analysis state of a game.
//
//	Eligible -> Processing -> Done
//	Processing -> Eligible (failure, release, stale sweep)
type State string

const (
	// Eligible games are waiting to be claimed.
	Eligible State = "eligible"
	// Processing games are claimed by exactly one worker.
	Processing State = "processing"
	// Done games carry a complete move analysis. Terminal.
	Done State = "done"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Eligible, Processing, Done:
		return true
	}
	return false
}

// Game is a stored game and its analysis state.
type Game struct {
	ID       string
	PlayerID uint
	URL      string

	// PGN is the full move-text record. Immutable once stored.
	PGN string

	White       Side
	Black       Side
	StartTime   time.Time
	EndTime     time.Time
	TimeControl string
	Rules       string
	ECO         string
	Tournament  string
	Match       string

	// Accuracy is chess.com's own review of the game, if any.
	Accuracy *Accuracy

	State      State
	ClaimedAt  *time.Time
	ClaimCount int
	AnalyzedAt *time.Time

	// Moves is set only when State is Done.
	Moves []Move
}

// Side describes one player of a game.
type Side struct {
	Username string
	Rating   int
	Result   string
}

// Accuracy holds the accuracy scores of both players.
type Accuracy struct {
	White float64 `json:"white"`
	Black float64 `json:"black"`
}

// MovesAnalyzed reports whether the game has a complete move analysis.
func (g *Game) MovesAnalyzed() bool {
	return g.State == Done
}

// IsProcessing reports whether the game is currently claimed.
func (g *Game) IsProcessing() bool {
	return g.State == Processing
}

// Claimable reports whether the game may be claimed by a coordinator.
func (g *Game) Claimable() bool {
	return g.State == Eligible
}

// Clone returns a deep copy of g.
func (g *Game) Clone() *Game {
	c := *g
	c.Moves = slices.Clone(g.Moves)
	if g.Accuracy != nil {
		a := *g.Accuracy
		c.Accuracy = &a
	}
	if g.ClaimedAt != nil {
		t := *g.ClaimedAt
		c.ClaimedAt = &t
	}
	if g.AnalyzedAt != nil {
		t := *g.AnalyzedAt
		c.AnalyzedAt = &t
	}
	return &c
}

// Move is the analysis record of a single ply.
type Move struct {
	Ply     int              `json:"ply"`
	UCI     string           `json:"move"`
	SAN     string           `json:"san,omitempty"`
	Delta   int              `json:"eval_diff"`
	Quality classify.Quality `json:"category"`
}

// Result is the outcome of analyzing one claimed game.
// A nil Err means Moves holds the complete analysis.
type Result struct {
	GameID string
	Moves  []Move
	Err    error
}

// Succeeded reports whether the analysis completed.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// State returns the state the game moves to when the result is written.
func (r Result) State() State {
	if r.Succeeded() {
		return Done
	}
	return Eligible
}

// ErrInvalidResult indicates a result that would break the Done invariant.
var ErrInvalidResult = errors.New("game: invalid result")

// Validate checks that a successful result carries a move list.
func (r Result) Validate() error {
	if r.GameID == "" {
		return fmt.Errorf("%w: empty game id", ErrInvalidResult)
	}
	if r.Succeeded() && r.Moves == nil {
		return fmt.Errorf("%w: game %s has no moves", ErrInvalidResult, r.GameID)
	}
	return nil
}

// Player is a chess.com account whose games are ingested.
type Player struct {
	ID          uint
	Username    string
	ChessComID  int64
	Title       string
	Status      string
	Name        string
	Avatar      string
	Location    string
	Country     string
	Joined      time.Time
	LastOnline  time.Time
	Followers   int
	IsStreamer  bool
	TwitchURL   string
	FIDE        int
	LastUpdated time.Time
}

// Archive is one monthly game archive of a player.
type Archive struct {
	ID             uint
	PlayerID       uint
	Year           int
	Month          int
	URL            string
	Downloaded     bool
	LastDownload   *time.Time
	IsCurrentMonth bool
}
