package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rushteam/dropfeed/engine"
)

type countingRunner struct {
	mu       sync.Mutex
	triggers []engine.Trigger
	err      error
}

func (r *countingRunner) Run(_ context.Context, t engine.Trigger) (*engine.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, t)
	return &engine.Result{RunID: "r", Trigger: t.Kind}, r.err
}

func (r *countingRunner) calls() []engine.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Trigger(nil), r.triggers...)
}

func TestScheduler_TicksUntilCanceled(t *testing.T) {
	runner := &countingRunner{}
	s := &Scheduler{Runner: runner, Interval: 10 * time.Millisecond, RunOnStart: true, Force: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(runner.calls()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs", len(runner.calls()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	for _, tr := range runner.calls() {
		if tr.Kind != engine.TriggerScheduled || !tr.ForceRegeneration || len(tr.UserIDs) != 0 {
			t.Errorf("trigger = %+v", tr)
		}
	}
}

func TestScheduler_RunErrorKeepsTicking(t *testing.T) {
	runner := &countingRunner{err: errors.New("list users: db down")}
	s := &Scheduler{Runner: runner, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = s.Start(ctx)

	if n := len(runner.calls()); n < 2 {
		t.Errorf("runs after errors = %d, want >= 2", n)
	}
}
