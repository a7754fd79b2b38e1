package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTaskAndReportsResult(t *testing.T) {
	r := NewRunner()
	defer r.Shutdown(context.Background())

	h, err := r.Submit("ok-task", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	wantErr := errors.New("boom")
	h, err = r.Submit("failing-task", func(context.Context) error { return wantErr })
	if err != nil {
		t.Fatalf("submit failing: %v", err)
	}
	if got := h.Wait(context.Background()); !errors.Is(got, wantErr) {
		t.Fatalf("expected task error, got %v", got)
	}
}

func TestPanicIsRecoveredAsError(t *testing.T) {
	r := NewRunner()
	defer r.Shutdown(context.Background())

	h, err := r.Submit("panicking-task", func(context.Context) error { panic("oh no") })
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := h.Wait(context.Background())
	if got == nil {
		t.Fatalf("expected panic surfaced as error")
	}
}

func TestOnFailureFiresForFailedTasksOnly(t *testing.T) {
	r := NewRunner()
	defer r.Shutdown(context.Background())

	var failures int32
	r.OnFailure(func(name string, err error) {
		atomic.AddInt32(&failures, 1)
	})

	h1, _ := r.Submit("good", func(context.Context) error { return nil })
	h2, _ := r.Submit("bad", func(context.Context) error { return errors.New("nope") })
	_ = h1.Wait(context.Background())
	_ = h2.Wait(context.Background())

	if got := atomic.LoadInt32(&failures); got != 1 {
		t.Fatalf("expected 1 failure callback, got %d", got)
	}
}

func TestShutdownRejectsNewWorkAndDrains(t *testing.T) {
	r := NewRunner()

	started := make(chan struct{})
	h, err := r.Submit("slow", func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := h.Err(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled task, got %v", err)
	}
	if _, err := r.Submit("late", func(context.Context) error { return nil }); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got %v", err)
	}
}
