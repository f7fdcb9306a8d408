// Package job runs backlog drains in the background, one at a time, and
// keeps a queryable record of each run.
package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/discochess/movegrade/internal/coordinator"
	"github.com/discochess/movegrade/internal/lock"
	"github.com/discochess/movegrade/internal/lock/locallock"
)

// ErrBusy is returned by Start when another process holds the drain lock.
var ErrBusy = errors.New("job: drain running in another process")

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("job: runner closed")

// DefaultHistory is the number of finished jobs kept for lookup.
const DefaultHistory = 64

// State is the lifecycle state of a job.
type State string

const (
	Queued    State = "queued"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// Finished reports whether s is terminal.
func (s State) Finished() bool {
	return s == Succeeded || s == Failed
}

// Job is a snapshot of one drain.
type Job struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`

	Batches        int `json:"batches"`
	Claimed        int `json:"claimed"`
	Analyzed       int `json:"analyzed"`
	Failed         int `json:"failed"`
	Deferred       int `json:"deferred"`
	CommitFailures int `json:"commit_failures"`

	// Per-game analysis time of successful games.
	MeanSeconds float64 `json:"mean_seconds"`
	P95Seconds  float64 `json:"p95_seconds"`
}

// Drainer drains the backlog, reporting progress after every batch.
// *coordinator.Coordinator implements it.
type Drainer interface {
	DrainWithProgress(ctx context.Context, fn coordinator.ProgressFunc) (coordinator.Summary, error)
}

// Runner starts drains and records them.
type Runner struct {
	drainer Drainer
	locker  lock.Locker
	logger  *zap.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *record
	history *lru.Cache[string, *record]
	closed  bool
}

// record is the mutable state behind a Job.
type record struct {
	job     Job
	elapsed []float64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLocker sets the lock that keeps drains exclusive across processes.
// The default is an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(r *Runner) { r.locker = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner that keeps the last history jobs.
func New(d Drainer, history int, opts ...Option) (*Runner, error) {
	if history <= 0 {
		history = DefaultHistory
	}
	cache, err := lru.New[string, *record](history)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		drainer: d,
		locker:  locallock.New(),
		logger:  zap.NewNop(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		history: cache,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("job")
	return r, nil
}

// Start launches a drain in the background and returns its job.
// If a drain started by this runner is still active, Start returns that
// job and started is false.
func (r *Runner) Start(ctx context.Context) (j Job, started bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Job{}, false, ErrClosed
	}
	if r.current != nil && !r.current.job.State.Finished() {
		return r.current.job, false, nil
	}

	lease, err := r.locker.TryLock(ctx)
	if errors.Is(err, lock.ErrHeld) {
		return Job{}, false, ErrBusy
	}
	if err != nil {
		return Job{}, false, err
	}

	rec := &record{job: Job{
		ID:        uuid.NewString(),
		State:     Queued,
		CreatedAt: r.now(),
	}}
	r.current = rec
	r.history.Add(rec.job.ID, rec)

	r.wg.Add(1)
	go r.run(rec, lease)

	return rec.job, true, nil
}

func (r *Runner) run(rec *record, lease lock.Lease) {
	defer r.wg.Done()
	defer func() {
		if err := lease.Unlock(context.WithoutCancel(r.ctx)); err != nil {
			r.logger.Warn("releasing drain lock", zap.Error(err))
		}
	}()

	r.update(rec, func(j *Job) {
		now := r.now()
		j.State = Running
		j.StartedAt = &now
	})
	log := r.logger.With(zap.String("job", rec.job.ID))
	log.Info("job started")

	sum, err := r.drainer.DrainWithProgress(r.ctx, func(p coordinator.Progress) {
		r.update(rec, func(j *Job) {
			setCounts(j, p.Batches, p.Claimed, p.Analyzed, p.Failed, p.Deferred, p.CommitFailures)
			for _, d := range p.Elapsed {
				rec.elapsed = append(rec.elapsed, d.Seconds())
			}
			j.MeanSeconds, j.P95Seconds = latency(rec.elapsed)
		})
	})

	r.update(rec, func(j *Job) {
		now := r.now()
		j.FinishedAt = &now
		setCounts(j, sum.Batches, sum.Claimed, sum.Analyzed, sum.Failed, sum.Deferred, sum.CommitFailures)
		if err != nil {
			j.State = Failed
			j.Error = err.Error()
			return
		}
		j.State = Succeeded
	})

	if err != nil {
		log.Error("job failed", zap.Error(err))
		return
	}
	log.Info("job succeeded", zap.Int("analyzed", sum.Analyzed), zap.Int("failed", sum.Failed))
}

func (r *Runner) update(rec *record, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&rec.job)
}

func setCounts(j *Job, batches, claimed, analyzed, failed, deferred, commitFailures int) {
	j.Batches = batches
	j.Claimed = claimed
	j.Analyzed = analyzed
	j.Failed = failed
	j.Deferred = deferred
	j.CommitFailures = commitFailures
}

// latency returns the mean and 95th percentile of samples.
func latency(samples []float64) (mean, p95 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return stat.Mean(sorted, nil), stat.Quantile(0.95, stat.Empirical, sorted, nil)
}

// Current returns the most recently started job.
func (r *Runner) Current() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Job{}, false
	}
	return r.current.job, true
}

// Get returns a job by id. Only the most recent jobs are kept.
func (r *Runner) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.history.Get(id)
	if !ok {
		return Job{}, false
	}
	return rec.job, true
}

// Wait blocks until every started drain has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops the running drain from claiming more batches and waits for
// it to finish or for ctx to be done.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
