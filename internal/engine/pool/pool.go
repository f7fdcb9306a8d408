// Package pool bounds the number of live engine processes.
//
// A Pool hands out at most Size engines at a time. Engines are created
// lazily on first demand and reused after Release. An engine that failed
// is Discarded so that its slot is refilled with a fresh process.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/engine"
	"github.com/discochess/movegrade/internal/stats"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("pool: closed")

// DefaultSize is the default number of engines.
const DefaultSize = 8

// Pool is a bounded set of engines.
type Pool struct {
	factory engine.Factory
	size    int
	logger  *zap.Logger
	stats   stats.Collector

	slots chan struct{}
	idle  chan engine.Engine

	mu     sync.Mutex
	inUse  int
	closed bool
	done   chan struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithSize sets the maximum number of engines. Values below 1 are ignored.
func WithSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return func(p *Pool) { p.stats = c }
}

// New creates a pool that builds engines with factory.
func New(factory engine.Factory, opts ...Option) *Pool {
	p := &Pool{
		factory: factory,
		size:    DefaultSize,
		logger:  zap.NewNop(),
		stats:   stats.NewNoop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.slots = make(chan struct{}, p.size)
	p.idle = make(chan engine.Engine, p.size)
	return p
}

// Size returns the maximum number of engines.
func (p *Pool) Size() int { return p.size }

// InUse returns the number of engines currently acquired.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Acquire returns an engine, blocking until one is free or ctx is done.
// The caller must hand the engine back with Release or Discard.
func (p *Pool) Acquire(ctx context.Context) (engine.Engine, error) {
	start := time.Now()

	select {
	case p.slots <- struct{}{}:
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.stats.ObserveHistogram(stats.MetricEngineWaitSeconds, time.Since(start).Seconds())

	var e engine.Engine
	select {
	case e = <-p.idle:
	default:
		var err error
		e, err = p.factory(ctx)
		if err != nil {
			<-p.slots
			return nil, err
		}
		p.logger.Debug("engine started")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = e.Close()
		<-p.slots
		return nil, ErrPoolClosed
	}
	p.inUse++
	inUse := p.inUse
	p.mu.Unlock()

	p.stats.SetGauge(stats.MetricEnginesInUse, int64(inUse))
	return e, nil
}

// Release returns a healthy engine to the pool.
func (p *Pool) Release(e engine.Engine) {
	p.mu.Lock()
	p.inUse--
	inUse := p.inUse
	closed := p.closed
	if !closed {
		// idle holds at most size engines, so this never blocks.
		p.idle <- e
	}
	p.mu.Unlock()

	if closed {
		_ = e.Close()
	}
	p.stats.SetGauge(stats.MetricEnginesInUse, int64(inUse))
	<-p.slots
}

// Discard closes a failed engine and frees its slot.
func (p *Pool) Discard(e engine.Engine) {
	p.mu.Lock()
	p.inUse--
	inUse := p.inUse
	p.mu.Unlock()

	if err := e.Close(); err != nil && !errors.Is(err, engine.ErrEngineClosed) {
		p.logger.Warn("closing discarded engine", zap.Error(err))
	}
	p.stats.SetGauge(stats.MetricEnginesInUse, int64(inUse))
	p.stats.IncCounter(stats.MetricEnginesDiscarded, 1)
	<-p.slots
}

// Close shuts down idle engines. Engines still acquired are closed
// when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case e := <-p.idle:
			if err := e.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}
