package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestTransitionError_IsInvalidTransition(t *testing.T) {
	err := NewTransitionError("deployment", "Running", "Installing")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(err.Error(), "Running") || !strings.Contains(err.Error(), "Installing") {
		t.Fatalf("expected message to name both states, got %q", err.Error())
	}
}

func TestConflictError_Retryable(t *testing.T) {
	var err error = &ConflictError{Entity: "deployment", ID: "d1", Expected: 2, Actual: 3}
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || !conflict.Retryable() {
		t.Fatalf("expected retryable conflict error")
	}
}

func TestEventLog_PullEventsClears(t *testing.T) {
	var log EventLog
	log.Record(NewEvent(EventDeploymentStarted, "d1", "web", "started"))
	log.Record(NewEvent(EventDeploymentCompleted, "d1", "web", "done"))

	if got := len(log.PendingEvents()); got != 2 {
		t.Fatalf("expected 2 pending events, got %d", got)
	}
	events := log.PullEvents()
	if len(events) != 2 || events[0].Type != EventDeploymentStarted {
		t.Fatalf("unexpected events: %+v", events)
	}
	if got := len(log.PendingEvents()); got != 0 {
		t.Fatalf("expected no pending events after pull, got %d", got)
	}
}

func TestRequireNonEmpty(t *testing.T) {
	if err := RequireNonEmpty("stack name", "  "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := RequireNonEmpty("stack name", "web"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
