package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdown is returned by Submit after the runner has been shut down.
var ErrShutdown = errors.New("job runner shut down")

// Runner supervises in-process background tasks. HTTP handlers submit work
// and return immediately; completion is observed through polled state in the
// store, but every task has a Handle so failures are logged and tests can
// wait deterministically instead of sleeping.
type Runner struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	closed   bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	nowFunc  func() time.Time
	handlers []func(name string, err error)
}

// Handle tracks one submitted task.
type Handle struct {
	name string
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Name returns the task name given at submission.
func (h *Handle) Name() string { return h.name }

// Done returns a channel closed when the task finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx is canceled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.Err()
	}
}

// Err returns the task error once finished, nil before.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// NewRunner creates a runner whose tasks inherit from a background context,
// detached from the HTTP requests that submit them.
func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		baseCtx: ctx,
		cancel:  cancel,
		nowFunc: time.Now,
	}
}

// OnFailure registers a callback invoked when any task finishes with an error
// or panic. Must be called before tasks are submitted.
func (r *Runner) OnFailure(fn func(name string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Submit schedules fn on its own goroutine and returns a handle. Panics are
// recovered and surfaced as task errors; nothing a task does can take the
// process down.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) (*Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShutdown
	}
	r.wg.Add(1)
	handlers := r.handlers
	r.mu.Unlock()

	h := &Handle{name: name, done: make(chan struct{})}
	go func() {
		defer r.wg.Done()
		start := r.nowFunc()
		err := runRecovered(r.baseCtx, fn)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
		if err != nil {
			slog.Error("background task failed",
				"task", name,
				"duration_ms", r.nowFunc().Sub(start).Milliseconds(),
				"err", err,
			)
			for _, handler := range handlers {
				handler(name, err)
			}
			return
		}
		slog.Debug("background task finished",
			"task", name,
			"duration_ms", r.nowFunc().Sub(start).Milliseconds(),
		)
	}()
	return h, nil
}

func runRecovered(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Shutdown cancels task contexts and waits for running tasks to finish, up to
// the deadline of ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
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
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
