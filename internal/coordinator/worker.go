package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/engine"
	"github.com/discochess/movegrade/internal/evaluator"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/stats"
)

// Engines hands out exclusive engines. *pool.Pool implements it.
type Engines interface {
	Acquire(ctx context.Context) (engine.Engine, error)
	Release(e engine.Engine)
	Discard(e engine.Engine)
}

// worker analyzes one claimed game on an engine it owns for the duration
// of the game.
type worker struct {
	engines Engines
	timeout time.Duration
	logger  *zap.Logger
	stats   stats.Collector
}

// outcome is a worker result plus the time it took.
type outcome struct {
	result  game.Result
	elapsed time.Duration
}

// analyze evaluates g. Errors are reported in the result and never returned.
// The game timeout starts once an engine is held; waiting for one is free.
func (w *worker) analyze(ctx context.Context, g *game.Game) outcome {
	moves, elapsed, err := w.evaluate(ctx, g)

	log := w.logger.With(zap.String("game", g.ID), zap.Duration("elapsed", elapsed))
	if err != nil {
		log.Warn("analysis failed", zap.Error(err))
		w.stats.IncCounter(stats.MetricGamesFailed, 1)
		return outcome{result: game.Result{GameID: g.ID, Err: err}, elapsed: elapsed}
	}

	log.Debug("analysis finished", zap.Int("plies", len(moves)))
	w.stats.ObserveHistogram(stats.MetricAnalysisSeconds, elapsed.Seconds())
	return outcome{result: game.Result{GameID: g.ID, Moves: moves}, elapsed: elapsed}
}

func (w *worker) evaluate(ctx context.Context, g *game.Game) ([]game.Move, time.Duration, error) {
	eng, err := w.engines.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquiring engine: %w", err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	moves, err := evaluator.Evaluate(ctx, eng, g.PGN)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, evaluator.ErrTranscript) {
		// The engine may be mid-search or dead; never hand it to another game.
		w.engines.Discard(eng)
		return nil, elapsed, err
	}
	w.engines.Release(eng)
	return moves, elapsed, err
}
