// Package evaluator replays a game transcript against an engine and grades
// every ply by the change in evaluation it caused.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"

	"github.com/discochess/movegrade/internal/classify"
	"github.com/discochess/movegrade/internal/engine"
	"github.com/discochess/movegrade/internal/game"
)

var (
	// ErrTranscript indicates a PGN that could not be parsed into moves.
	ErrTranscript = errors.New("evaluator: unparseable transcript")

	// ErrEngine indicates that the engine failed during the replay.
	ErrEngine = errors.New("evaluator: engine failure")
)

// MateDelta is the delta assigned when a forced mate appears or disappears.
const MateDelta = 10000

// Evaluate replays pgn on eng from the starting position and returns one
// record per ply, in play order. Any failure discards the whole analysis.
func Evaluate(ctx context.Context, eng engine.Engine, pgn string) ([]game.Move, error) {
	g, err := Parse(pgn)
	if err != nil {
		return nil, err
	}

	if err := eng.Reset(ctx); err != nil {
		return nil, fmt.Errorf("%w: reset: %w", ErrEngine, err)
	}
	prev, err := eng.Evaluate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline: %w", ErrEngine, err)
	}

	positions := g.Positions()
	moves := g.Moves()
	out := make([]game.Move, 0, len(moves))

	for i, m := range moves {
		pos := positions[i]
		uci := chess.UCINotation{}.Encode(pos, m)

		if err := eng.ApplyMove(ctx, uci); err != nil {
			return nil, fmt.Errorf("%w: ply %d (%s): %w", ErrEngine, i+1, uci, err)
		}
		cur, err := eng.Evaluate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: ply %d (%s): %w", ErrEngine, i+1, uci, err)
		}

		delta := Delta(prev, cur, pos.Turn() == chess.Black)
		out = append(out, game.Move{
			Ply:     i + 1,
			UCI:     uci,
			SAN:     chess.AlgebraicNotation{}.Encode(pos, m),
			Delta:   delta,
			Quality: classify.Classify(delta),
		})
		prev = cur
	}

	return out, nil
}

// Parse decodes the mainline of a single PGN game played from the
// standard starting position.
func Parse(pgn string) (*chess.Game, error) {
	if strings.TrimSpace(pgn) == "" {
		return nil, fmt.Errorf("%w: empty", ErrTranscript)
	}
	opt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscript, err)
	}
	g := chess.NewGame(opt)
	// Engines replay from the standard start; a SetUp/FEN game cannot be graded.
	if start := g.Positions()[0]; start.Hash() != chess.StartingPosition().Hash() {
		return nil, fmt.Errorf("%w: game starts from %s", ErrTranscript, start)
	}
	return g, nil
}

// Delta computes the evaluation change caused by one ply.
// prev and cur are White-relative; moverIsBlack reports whether Black
// made the move.
//
// Mate branches take their sign from the mate value alone and never from
// the mover. Callers rely on these exact values.
func Delta(prev, cur engine.Score, moverIsBlack bool) int {
	switch {
	case prev.IsMate() && cur.IsMate():
		return (prev.Value - cur.Value) * 100
	case prev.IsMate():
		if prev.Value > 0 {
			return MateDelta
		}
		return -MateDelta
	case cur.IsMate():
		if cur.Value > 0 {
			return -MateDelta
		}
		return MateDelta
	}

	delta := cur.Value - prev.Value
	if moverIsBlack {
		delta = -delta
	}
	return delta
}
