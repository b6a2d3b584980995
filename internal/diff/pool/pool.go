// Package pool bounds and isolates diff execution. Differs run untrusted
// page content through parsers and diff algorithms, so a misbehaving job must
// not take the server down with it: panics are contained, a broken pool is
// rebuilt once cooperatively, and repeated breakage shuts the server down
// with a distinct exit code so the supervisor restarts it.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pagediff/pagediff/internal/diff"
	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
	"github.com/pagediff/pagediff/internal/metrics"
)

// QuitCode is the process exit code used when the diff pool breaks repeatedly.
const QuitCode = 10

// ErrBroken is returned by Submit when the pool has been poisoned by a
// panicking job. Callers should reset the pool and retry once.
var ErrBroken = ferrors.InternalError("diff worker pool is broken").Build()

// Job computes a diff result. Jobs may panic; the pool contains it.
type Job func() (*diff.Result, error)

// Pool executes jobs with bounded concurrency and panic isolation.
type Pool struct {
	sem    chan struct{}
	broken atomic.Bool
	wg     sync.WaitGroup
}

// New creates a pool running at most workers jobs concurrently.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: make(chan struct{}, workers)}
}

// Submit runs job, blocking for a worker slot. A panicking job poisons the
// pool: the caller gets ErrBroken and so does every later Submit until the
// pool is replaced.
func (p *Pool) Submit(ctx context.Context, job Job) (result *diff.Result, err error) {
	if p.broken.Load() {
		return nil, ErrBroken
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ferrors.TimeoutError("timed out waiting for a diff worker").
			WithCause(ctx.Err()).
			Build()
	}
	p.wg.Add(1)
	defer func() {
		<-p.sem
		p.wg.Done()
		if r := recover(); r != nil {
			p.broken.Store(true)
			slog.Error("diff job panicked", "panic", fmt.Sprint(r))
			result, err = nil, ErrBroken
		}
	}()

	return job()
}

// Broken reports whether the pool has been poisoned.
func (p *Pool) Broken() bool {
	return p.broken.Load()
}

// Wait blocks until in-flight jobs finish or ctx expires.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runner submits jobs and owns the pool's replace-on-break lifecycle.
type Runner struct {
	mu      sync.Mutex
	pool    *Pool
	newPool func() *Pool

	// restartOnBreak keeps the server alive when a rebuilt pool breaks again.
	restartOnBreak bool
	// quit initiates process shutdown; injectable for tests.
	quit func(code int)

	recorder metrics.Recorder
	resets   atomic.Int64
}

// NewRunner creates a runner with the given worker count. quit is called with
// QuitCode when a freshly rebuilt pool breaks again (unless restartOnBreak).
// recorder may be nil.
func NewRunner(workers int, restartOnBreak bool, quit func(code int), recorder metrics.Recorder) *Runner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	newPool := func() *Pool { return New(workers) }
	return &Runner{
		pool:           newPool(),
		newPool:        newPool,
		restartOnBreak: restartOnBreak,
		quit:           quit,
		recorder:       recorder,
	}
}

// Do runs job on the current pool. When the pool reports broken, it is
// replaced exactly once (concurrent failures share the one rebuild) and the
// job retried. A second consecutive break is fatal.
func (r *Runner) Do(ctx context.Context, job Job) (*diff.Result, error) {
	current := r.currentPool()
	result, err := current.Submit(ctx, job)
	if err != ErrBroken {
		return result, err
	}

	fresh := r.resetPool(current)
	result, err = fresh.Submit(ctx, job)
	if err != ErrBroken {
		return result, err
	}

	if r.restartOnBreak {
		slog.Error("Diff worker pool broke twice; restart_broken_differ is set, continuing")
	} else {
		slog.Error("Diff worker pool broke twice; shutting down")
		r.quit(QuitCode)
	}
	return nil, ferrors.InternalError("differ failed repeatedly").Build()
}

// Resets returns how many times the pool has been rebuilt.
func (r *Runner) Resets() int64 {
	return r.resets.Load()
}

func (r *Runner) currentPool() *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

// resetPool replaces broken only if it is still the active pool, so parallel
// failures trigger a single rebuild.
func (r *Runner) resetPool(broken *Pool) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool == broken {
		r.pool = r.newPool()
		r.resets.Add(1)
		r.recorder.IncPoolReset()
		slog.Warn("Rebuilt diff worker pool after breakage")
	}
	return r.pool
}
