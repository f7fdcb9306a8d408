package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/discochess/movegrade/internal/engine"
	"github.com/discochess/movegrade/internal/engine/pool"
	"github.com/discochess/movegrade/internal/engine/scripted"
	"github.com/discochess/movegrade/internal/game"
	"github.com/discochess/movegrade/internal/store/memstore"
)

const fourPlies = "1. e4 e5 2. Nf3 Nc6 *"

func seed(s *memstore.Store, n int) {
	for i := 0; i < n; i++ {
		s.Put(&game.Game{ID: fmt.Sprintf("g%02d", i), PGN: fourPlies})
	}
}

// trackingFactory counts engines created and the peak number evaluating at once.
type trackingFactory struct {
	created atomic.Int64
	active  atomic.Int64
	peak    atomic.Int64
	opts    []scripted.Option
}

func (f *trackingFactory) factory(ctx context.Context) (engine.Engine, error) {
	f.created.Add(1)
	eval := func(moves []string) (engine.Score, error) {
		n := f.active.Add(1)
		defer f.active.Add(-1)
		for {
			old := f.peak.Load()
			if n <= old || f.peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(200 * time.Microsecond)
		return engine.CP(10 * len(moves)), nil
	}
	opts := append([]scripted.Option{scripted.WithEval(eval)}, f.opts...)
	return scripted.New(opts...), nil
}

func TestDrain_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(s, 25)

	tf := &trackingFactory{}
	engines := pool.New(tf.factory, pool.WithSize(8))
	defer engines.Close()

	var batches []int
	c := New(s, engines,
		WithBatchSize(10),
		WithConcurrency(8),
		WithPause(0),
		WithProgress(func(p Progress) { batches = append(batches, p.Claimed) }),
	)

	sum, err := c.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	want := Summary{Batches: 3, Claimed: 25, Analyzed: 25}
	if sum != want {
		t.Errorf("Drain() = %+v, want %+v", sum, want)
	}
	if len(batches) != 3 || batches[0] != 10 || batches[1] != 20 || batches[2] != 25 {
		t.Errorf("progress claimed = %v, want [10 20 25]", batches)
	}

	for _, g := range s.Games() {
		if !g.MovesAnalyzed() || g.IsProcessing() {
			t.Errorf("game %s state = %s", g.ID, g.State)
		}
		if g.ClaimCount != 1 {
			t.Errorf("game %s claimed %d times, want 1", g.ID, g.ClaimCount)
		}
		if len(g.Moves) != 4 {
			t.Errorf("game %s has %d moves, want 4", g.ID, len(g.Moves))
		}
	}

	if peak := tf.peak.Load(); peak > 8 {
		t.Errorf("peak concurrent evaluations = %d, want <= 8", peak)
	}
	if created := tf.created.Load(); created > 8 {
		t.Errorf("engines created = %d, want <= 8", created)
	}
}

func TestDrain_EmptyBacklog(t *testing.T) {
	s := memstore.New()
	engines := pool.New(scripted.Factory())
	defer engines.Close()

	sum, err := New(s, engines, WithPause(0)).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if sum != (Summary{}) {
		t.Errorf("Drain() = %+v, want zero summary", sum)
	}
}

func TestDrain_TranscriptFailureDeferred(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(s, 3)
	s.Put(&game.Game{ID: "bad", PGN: "1. e4 e5 2. Ke3 *"})

	core, logs := observer.New(zapcore.WarnLevel)
	engines := pool.New(scripted.Factory(), pool.WithSize(2))
	defer engines.Close()

	c := New(s, engines,
		WithBatchSize(2),
		WithPause(0),
		WithMaxAttempts(3),
		WithLogger(zap.New(core)),
	)
	sum, err := c.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if sum.Analyzed != 3 || sum.Failed != 3 || sum.Deferred != 1 {
		t.Errorf("Drain() = %+v, want 3 analyzed, 3 failed, 1 deferred", sum)
	}

	bad, _ := s.Get(ctx, "bad")
	if !bad.Claimable() || bad.Moves != nil {
		t.Errorf("bad game = %+v, want eligible without moves", bad)
	}
	if bad.ClaimCount != 3 {
		t.Errorf("bad game claimed %d times, want 3", bad.ClaimCount)
	}

	failures := logs.FilterMessage("analysis failed").FilterField(zap.String("game", "bad"))
	if failures.Len() != 3 {
		t.Errorf("logged %d failures for bad game, want 3", failures.Len())
	}
	if logs.FilterMessage("deferring game to a later drain").Len() != 1 {
		t.Error("deferral not logged")
	}
}

func TestDrain_EngineFailureRetried(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(s, 1)

	var created atomic.Int64
	var discarded []*scripted.Engine
	factory := func(ctx context.Context) (engine.Engine, error) {
		if created.Add(1) == 1 {
			e := scripted.New(scripted.WithEval(scripted.FailAfter(2, scripted.Sequence())))
			discarded = append(discarded, e)
			return e, nil
		}
		return scripted.New(), nil
	}
	engines := pool.New(factory, pool.WithSize(1))
	defer engines.Close()

	sum, err := New(s, engines, WithPause(0)).Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if sum.Analyzed != 1 || sum.Failed != 1 || sum.Batches != 2 {
		t.Errorf("Drain() = %+v, want 1 failure then 1 success over 2 batches", sum)
	}

	g, _ := s.Get(ctx, "g00")
	if !g.MovesAnalyzed() || g.ClaimCount != 2 {
		t.Errorf("game = state %s, claims %d; want done after 2 claims", g.State, g.ClaimCount)
	}
	if !discarded[0].Closed() {
		t.Error("failed engine was not discarded")
	}
	if created.Load() != 2 {
		t.Errorf("engines created = %d, want 2", created.Load())
	}
}

func TestDrain_EngineWaitNotCountedAgainstGame(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(s, 3)

	// Each game takes about 50ms on the single engine; the third waits
	// about 100ms for it.
	engines := pool.New(scripted.Factory(scripted.WithDelay(10*time.Millisecond)), pool.WithSize(1))
	defer engines.Close()

	sum, err := New(s, engines,
		WithBatchSize(3),
		WithConcurrency(3),
		WithGameTimeout(150*time.Millisecond),
		WithPause(0),
	).Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if sum.Analyzed != 3 || sum.Failed != 0 || sum.Batches != 1 {
		t.Errorf("Drain() = %+v, want 3 analyzed in 1 batch", sum)
	}
}

func TestClaimLifetime(t *testing.T) {
	tests := []struct {
		batch, concurrency int
		want               time.Duration
	}{
		{10, 8, 2*10*time.Minute + 30*time.Second},
		{8, 8, 10*time.Minute + 30*time.Second},
		{2, 1, 2*10*time.Minute + 30*time.Second},
		{3, 0, 3*10*time.Minute + 30*time.Second},
	}
	for _, tt := range tests {
		got := ClaimLifetime(tt.batch, tt.concurrency, 10*time.Minute, 30*time.Second)
		if got != tt.want {
			t.Errorf("ClaimLifetime(%d, %d) = %v, want %v", tt.batch, tt.concurrency, got, tt.want)
		}
	}
}

func TestDrain_CommitFailureReleasesBatch(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(s, 4)
	s.FailCommits(errors.New("connection reset"))

	engines := pool.New(scripted.Factory(), pool.WithSize(2))
	defer engines.Close()

	var afterFailure []*game.Game
	c := New(s, engines,
		WithBatchSize(4),
		WithPause(0),
		WithProgress(func(p Progress) {
			if p.CommitFailures == 1 && afterFailure == nil {
				afterFailure = s.Games()
				s.FailCommits(nil)
			}
		}),
	)

	sum, err := c.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if sum.CommitFailures != 1 || sum.Analyzed != 4 || sum.Batches != 2 {
		t.Errorf("Drain() = %+v", sum)
	}

	for _, g := range afterFailure {
		if !g.Claimable() || g.Moves != nil {
			t.Errorf("after failed commit game %s = %s, want eligible", g.ID, g.State)
		}
	}
	for _, g := range s.Games() {
		if !g.MovesAnalyzed() || g.ClaimCount != 2 {
			t.Errorf("game %s = %s with %d claims, want done with 2", g.ID, g.State, g.ClaimCount)
		}
	}
}

func TestDrain_StoreUnavailable(t *testing.T) {
	s := memstore.New()
	seed(s, 2)
	s.FailClaims(errors.New("too many connections"))

	engines := pool.New(scripted.Factory())
	defer engines.Close()

	_, err := New(s, engines, WithPause(0), WithMaxStoreFailures(3)).Drain(context.Background())
	if !errors.Is(err, ErrStore) {
		t.Fatalf("Drain() error = %v, want ErrStore", err)
	}
}

func TestDrain_CancelStopsClaiming(t *testing.T) {
	s := memstore.New()
	seed(s, 6)

	engines := pool.New(scripted.Factory(), pool.WithSize(2))
	defer engines.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(s, engines,
		WithBatchSize(2),
		WithPause(time.Hour),
		WithProgress(func(Progress) { cancel() }),
	)
	sum, err := c.Drain(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Drain() error = %v, want context.Canceled", err)
	}
	if sum.Batches != 1 || sum.Analyzed != 2 {
		t.Errorf("Drain() = %+v, want one committed batch", sum)
	}

	done := 0
	for _, g := range s.Games() {
		if g.IsProcessing() {
			t.Errorf("game %s left processing after shutdown", g.ID)
		}
		if g.MovesAnalyzed() {
			done++
		}
	}
	if done != 2 {
		t.Errorf("%d games done, want 2", done)
	}
}

func TestDrain_InFlightSurvivesCancel(t *testing.T) {
	s := memstore.New()
	seed(s, 2)

	engines := pool.New(scripted.Factory(scripted.WithDelay(5*time.Millisecond)), pool.WithSize(2))
	defer engines.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	c := New(s, engines, WithPause(0))
	c.worker.engines = notifyingEngines{Engines: engines, once: &sync.Once{}, started: started}

	if _, err := c.Drain(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Drain() error = %v, want context.Canceled", err)
	}
	for _, g := range s.Games() {
		if !g.MovesAnalyzed() {
			t.Errorf("in-flight game %s = %s, want done", g.ID, g.State)
		}
	}
}

// notifyingEngines closes started on the first Acquire.
type notifyingEngines struct {
	Engines
	once    *sync.Once
	started chan struct{}
}

func (n notifyingEngines) Acquire(ctx context.Context) (engine.Engine, error) {
	e, err := n.Engines.Acquire(ctx)
	n.once.Do(func() { close(n.started) })
	return e, err
}
