package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
	mu      sync.Mutex
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func newLoopMonitor(interval time.Duration, ticker Ticker, runOnce func(context.Context) error) *Monitor {
	return New(zerolog.Nop(), interval, nil, nil, nil,
		WithTickerFactory(func(time.Duration) Ticker { return ticker }),
		WithRunOnce(runOnce),
	)
}

func TestMonitor_Run_TriggersRunOnceOnTicks(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time, 2)}
	runCalls := make(chan struct{}, 3)

	m := newLoopMonitor(time.Second, ticker, func(context.Context) error {
		runCalls <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	ticker.ch <- time.Now()
	ticker.ch <- time.Now()

	// One immediate run plus one per tick.
	if !waitForCalls(runCalls, 3, time.Second) {
		t.Fatalf("expected three run calls")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop after cancel")
	}
	if !ticker.Stopped() {
		t.Fatalf("expected ticker to be stopped")
	}
}

func TestMonitor_Run_RejectsZeroPollInterval(t *testing.T) {
	m := newLoopMonitor(0, &fakeTicker{ch: make(chan time.Time)}, func(context.Context) error { return nil })
	if err := m.Run(context.Background()); err == nil {
		t.Fatalf("expected error for zero poll interval")
	}
}

func TestMonitor_Run_ContinuesAfterCycleError(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}
	runCalls := make(chan struct{}, 2)

	m := newLoopMonitor(time.Second, ticker, func(context.Context) error {
		runCalls <- struct{}{}
		return &RuntimeError{Op: "check shop", Err: context.DeadlineExceeded}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	ticker.ch <- time.Now()
	if !waitForCalls(runCalls, 2, time.Second) {
		t.Fatalf("expected the loop to keep running after errors")
	}
	cancel()
	<-done
}

func waitForCalls(ch <-chan struct{}, count int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < count; i++ {
		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
	return true
}
