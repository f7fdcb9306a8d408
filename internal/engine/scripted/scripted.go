// Package scripted provides a deterministic in-memory engine for testing.
package scripted

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discochess/movegrade/internal/engine"
)

// Compile-time check that Engine implements engine.Engine.
var _ engine.Engine = (*Engine)(nil)

// ErrScripted is the error returned by injected failures.
var ErrScripted = errors.New("scripted: injected failure")

// EvalFunc returns the score of the position reached by moves.
type EvalFunc func(moves []string) (engine.Score, error)

// Engine is a scripted engine. It records applied moves and answers
// evaluations through an EvalFunc.
type Engine struct {
	eval  EvalFunc
	delay time.Duration

	mu     sync.Mutex
	moves  []string
	closed bool

	evaluations atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithEval sets the evaluation function. The default scores every position 0.
func WithEval(fn EvalFunc) Option {
	return func(e *Engine) { e.eval = fn }
}

// WithDelay makes every evaluation take at least d.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// New creates a scripted engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		eval: func([]string) (engine.Score, error) { return engine.CP(0), nil },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sequence returns an EvalFunc yielding scores[n] after n applied moves.
// Positions past the end of the sequence score 0.
func Sequence(scores ...engine.Score) EvalFunc {
	return func(moves []string) (engine.Score, error) {
		if len(moves) < len(scores) {
			return scores[len(moves)], nil
		}
		return engine.CP(0), nil
	}
}

// FailAfter wraps fn so that evaluations fail once n moves have been applied.
func FailAfter(n int, fn EvalFunc) EvalFunc {
	return func(moves []string) (engine.Score, error) {
		if len(moves) >= n {
			return engine.Score{}, ErrScripted
		}
		return fn(moves)
	}
}

// Reset clears the applied moves.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrEngineClosed
	}
	e.moves = e.moves[:0]
	return nil
}

// ApplyMove records a move.
func (e *Engine) ApplyMove(ctx context.Context, uci string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrEngineClosed
	}
	e.moves = append(e.moves, uci)
	return nil
}

// Evaluate scores the current position.
func (e *Engine) Evaluate(ctx context.Context) (engine.Score, error) {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return engine.Score{}, ctx.Err()
		case <-time.After(e.delay):
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.Score{}, engine.ErrEngineClosed
	}
	e.evaluations.Add(1)
	moves := make([]string, len(e.moves))
	copy(moves, e.moves)
	return e.eval(moves)
}

// Moves returns a copy of the moves applied since the last Reset.
func (e *Engine) Moves() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	moves := make([]string, len(e.moves))
	copy(moves, e.moves)
	return moves
}

// Evaluations returns the number of Evaluate calls served.
func (e *Engine) Evaluations() int64 {
	return e.evaluations.Load()
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrEngineClosed
	}
	e.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Factory returns an engine.Factory producing scripted engines with opts.
func Factory(opts ...Option) engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		return New(opts...), nil
	}
}
