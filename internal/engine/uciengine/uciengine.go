// Package uciengine adapts a UCI engine process such as Stockfish to the
// engine.Engine interface.
package uciengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/uci"
	"github.com/notnil/chess"
	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/engine"
)

// Compile-time check that Engine implements engine.Engine.
var _ engine.Engine = (*Engine)(nil)

// Defaults.
const (
	DefaultPath    = "stockfish"
	DefaultDepth   = 12
	DefaultHashMB  = 64
	DefaultThreads = 1
	DefaultTimeout = time.Minute
)

// ErrNoResult is returned when the engine finishes a search without a score.
var ErrNoResult = errors.New("uciengine: no search result")

// Config configures an Engine.
type Config struct {
	// Path is the engine binary.
	Path string
	// Depth is the search depth of every evaluation.
	Depth int
	// HashMB is the transposition table size.
	HashMB int
	// Threads is the number of search threads.
	Threads int
	// Timeout bounds a single evaluation.
	Timeout time.Duration
	// Logger receives engine lifecycle events.
	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Depth <= 0 {
		c.Depth = DefaultDepth
	}
	if c.HashMB <= 0 {
		c.HashMB = DefaultHashMB
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Engine is a UCI engine process plus the board it is analyzing.
type Engine struct {
	proc    *uci.Engine
	board   *chess.Game
	depth   int
	timeout time.Duration
	logger  *zap.Logger
	closed  bool
}

// New starts an engine process.
func New(cfg Config) (*Engine, error) {
	cfg.setDefaults()

	proc, err := uci.NewEngine(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Path, err)
	}
	opts := uci.Options{
		Hash:    cfg.HashMB,
		Threads: cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := proc.SetOptions(opts); err != nil {
		proc.Close()
		return nil, fmt.Errorf("setting options: %w", err)
	}

	cfg.Logger.Debug("engine process started", zap.String("path", cfg.Path), zap.Int("depth", cfg.Depth))
	return &Engine{
		proc:    proc,
		board:   chess.NewGame(),
		depth:   cfg.Depth,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Factory returns an engine.Factory that starts engines with cfg.
func Factory(cfg Config) engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		return New(cfg)
	}
}

// Reset returns to the starting position.
func (e *Engine) Reset(ctx context.Context) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	e.board = chess.NewGame()
	return nil
}

// ApplyMove plays a UCI move on the board.
func (e *Engine) ApplyMove(ctx context.Context, move string) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	m, err := chess.UCINotation{}.Decode(e.board.Position(), move)
	if err != nil {
		return fmt.Errorf("decoding %q: %w", move, err)
	}
	if err := e.board.Move(m); err != nil {
		return fmt.Errorf("playing %q: %w", move, err)
	}
	return nil
}

// Evaluate searches the current position to the configured depth.
// The search runs until ctx is done or the timeout passes; an engine
// whose search was abandoned must be closed.
func (e *Engine) Evaluate(ctx context.Context) (engine.Score, error) {
	if e.closed {
		return engine.Score{}, engine.ErrEngineClosed
	}
	if s, ok := terminal(e.board); ok {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	pos := e.board.Position()
	if err := e.proc.SetFEN(pos.String()); err != nil {
		return engine.Score{}, fmt.Errorf("setting position: %w", err)
	}

	type search struct {
		results *uci.Results
		err     error
	}
	done := make(chan search, 1)
	go func() {
		r, err := e.proc.GoDepth(e.depth, uci.HighestDepthOnly)
		done <- search{r, err}
	}()

	var s search
	select {
	case <-ctx.Done():
		return engine.Score{}, fmt.Errorf("searching: %w", ctx.Err())
	case s = <-done:
	}
	if s.err != nil {
		return engine.Score{}, fmt.Errorf("searching: %w", s.err)
	}
	if s.results == nil || len(s.results.Results) == 0 {
		return engine.Score{}, ErrNoResult
	}

	best := s.results.Results[0]
	for _, r := range s.results.Results {
		if r.Depth > best.Depth {
			best = r
		}
	}
	return normalize(best.Score, best.Mate, pos.Turn() == chess.Black), nil
}

// Close stops the engine process.
func (e *Engine) Close() error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	e.closed = true
	e.proc.Close()
	return nil
}

// normalize converts a side-to-move score to White's point of view.
func normalize(score int, mate, blackToMove bool) engine.Score {
	if blackToMove {
		score = -score
	}
	if mate {
		return engine.MateIn(score)
	}
	return engine.CP(score)
}

// terminal scores finished games without a search: checkmate is mate in 0
// and every other result is a dead draw.
func terminal(g *chess.Game) (engine.Score, bool) {
	if g.Outcome() == chess.NoOutcome {
		return engine.Score{}, false
	}
	if g.Method() == chess.Checkmate {
		return engine.MateIn(0), true
	}
	return engine.CP(0), true
}
