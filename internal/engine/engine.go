// Package engine defines the chess engine interface used for move analysis.
package engine

import (
	"context"
	"errors"
	"strconv"
)

// ErrEngineClosed is returned by engines used after Close.
var ErrEngineClosed = errors.New("engine: closed")

// Kind distinguishes centipawn scores from forced-mate scores.
type Kind int

const (
	// Centipawns is a material-style score in hundredths of a pawn.
	Centipawns Kind = iota
	// Mate is a forced mate; Value is the distance in moves.
	Mate
)

// Score is a position evaluation from White's point of view.
// For Mate scores, a positive Value means White delivers mate.
type Score struct {
	Kind  Kind
	Value int
}

// CP returns a centipawn score.
func CP(v int) Score { return Score{Kind: Centipawns, Value: v} }

// MateIn returns a forced-mate score.
func MateIn(n int) Score { return Score{Kind: Mate, Value: n} }

// IsMate reports whether the score is a forced mate.
func (s Score) IsMate() bool { return s.Kind == Mate }

// String returns a short form: "+0.35", "-1.20", "#3", "#-2".
func (s Score) String() string {
	if s.IsMate() {
		return "#" + strconv.Itoa(s.Value)
	}
	cp := s.Value
	sign := "+"
	if cp < 0 {
		sign = "-"
		cp = -cp
	}
	frac := cp % 100
	if frac < 10 {
		return sign + strconv.Itoa(cp/100) + ".0" + strconv.Itoa(frac)
	}
	return sign + strconv.Itoa(cp/100) + "." + strconv.Itoa(frac)
}

// Engine evaluates positions reached by applying moves from the start.
// An Engine is not safe for concurrent use; each in-flight analysis owns one.
type Engine interface {
	// Reset returns the engine to the standard starting position.
	Reset(ctx context.Context) error

	// ApplyMove plays a move in UCI notation (e.g. "e2e4", "e7e8q")
	// from the current position.
	ApplyMove(ctx context.Context, uci string) error

	// Evaluate returns the evaluation of the current position.
	Evaluate(ctx context.Context) (Score, error)

	// Close releases the engine process.
	Close() error
}

// Factory creates a new Engine.
type Factory func(ctx context.Context) (Engine, error)
