package scripted

import (
	"context"
	"errors"
	"testing"

	"github.com/discochess/movegrade/internal/engine"
)

func TestEngine_Sequence(t *testing.T) {
	ctx := context.Background()
	e := New(WithEval(Sequence(engine.CP(20), engine.CP(35), engine.MateIn(2))))

	if err := e.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	want := []engine.Score{engine.CP(20), engine.CP(35), engine.MateIn(2), engine.CP(0)}
	for i, w := range want {
		if i > 0 {
			if err := e.ApplyMove(ctx, "e2e4"); err != nil {
				t.Fatalf("ApplyMove() error = %v", err)
			}
		}
		got, err := e.Evaluate(ctx)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if got != w {
			t.Errorf("Evaluate() after %d moves = %v, want %v", i, got, w)
		}
	}

	if e.Evaluations() != 4 {
		t.Errorf("Evaluations() = %d, want 4", e.Evaluations())
	}
}

func TestEngine_FailAfter(t *testing.T) {
	ctx := context.Background()
	e := New(WithEval(FailAfter(1, Sequence())))

	if _, err := e.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate() before failure error = %v", err)
	}
	_ = e.ApplyMove(ctx, "e2e4")
	if _, err := e.Evaluate(ctx); !errors.Is(err, ErrScripted) {
		t.Errorf("Evaluate() error = %v, want ErrScripted", err)
	}
}

func TestEngine_ResetClearsMoves(t *testing.T) {
	ctx := context.Background()
	e := New()
	_ = e.ApplyMove(ctx, "e2e4")
	_ = e.ApplyMove(ctx, "e7e5")
	if len(e.Moves()) != 2 {
		t.Fatalf("Moves() = %v", e.Moves())
	}
	_ = e.Reset(ctx)
	if len(e.Moves()) != 0 {
		t.Errorf("Moves() after Reset = %v, want empty", e.Moves())
	}
}

func TestEngine_Close(t *testing.T) {
	ctx := context.Background()
	e := New()
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !e.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := e.Close(); !errors.Is(err, engine.ErrEngineClosed) {
		t.Errorf("second Close() error = %v, want ErrEngineClosed", err)
	}
	if _, err := e.Evaluate(ctx); !errors.Is(err, engine.ErrEngineClosed) {
		t.Errorf("Evaluate() after Close error = %v, want ErrEngineClosed", err)
	}
}
