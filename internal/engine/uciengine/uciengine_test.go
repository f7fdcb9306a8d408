package uciengine

import (
	"strings"
	"testing"

	"github.com/notnil/chess"

	"github.com/discochess/movegrade/internal/engine"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		score       int
		mate        bool
		blackToMove bool
		want        engine.Score
	}{
		{35, false, false, engine.CP(35)},
		{35, false, true, engine.CP(-35)},
		{-120, false, true, engine.CP(120)},
		{3, true, false, engine.MateIn(3)},
		{3, true, true, engine.MateIn(-3)},
		{-2, true, true, engine.MateIn(2)},
	}

	for _, tt := range tests {
		if got := normalize(tt.score, tt.mate, tt.blackToMove); got != tt.want {
			t.Errorf("normalize(%d, %v, %v) = %v, want %v", tt.score, tt.mate, tt.blackToMove, got, tt.want)
		}
	}
}

func play(t *testing.T, moves string) *chess.Game {
	t.Helper()
	g := chess.NewGame()
	for _, mv := range strings.Fields(moves) {
		if err := g.MoveStr(mv); err != nil {
			t.Fatalf("MoveStr(%q) error = %v", mv, err)
		}
	}
	return g
}

func TestTerminal(t *testing.T) {
	if _, ok := terminal(chess.NewGame()); ok {
		t.Error("terminal(start) = true")
	}

	foolsMate := play(t, "f3 e5 g4 Qh4#")
	s, ok := terminal(foolsMate)
	if !ok || s != engine.MateIn(0) {
		t.Errorf("terminal(fool's mate) = %v, %v; want #0", s, ok)
	}

	resigned := chess.NewGame()
	resigned.Resign(chess.Black)
	s, ok = terminal(resigned)
	if !ok || s != engine.CP(0) {
		t.Errorf("terminal(resigned) = %v, %v; want +0.00", s, ok)
	}
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.setDefaults()
	if c.Path != DefaultPath || c.Depth != DefaultDepth || c.HashMB != DefaultHashMB || c.Threads != DefaultThreads || c.Timeout != DefaultTimeout || c.Logger == nil {
		t.Errorf("setDefaults() = %+v", c)
	}

	c = Config{Depth: 20}
	c.setDefaults()
	if c.Depth != 20 {
		t.Errorf("Depth = %d, want 20", c.Depth)
	}
}
