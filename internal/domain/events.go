package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened to an aggregate.
type EventType string

const (
	EventDeploymentStarted               EventType = "deployment.started"
	EventDeploymentInstalling            EventType = "deployment.installing"
	EventDeploymentUpgradeStarted        EventType = "deployment.upgrade_started"
	EventDeploymentCompleted             EventType = "deployment.completed"
	EventDeploymentFailed                EventType = "deployment.failed"
	EventDeploymentStopped               EventType = "deployment.stopped"
	EventDeploymentRestarted             EventType = "deployment.restarted"
	EventDeploymentCancellationRequested EventType = "deployment.cancellation_requested"
	EventDeploymentRemoved               EventType = "deployment.removed"
	EventOperationModeChanged            EventType = "deployment.operation_mode_changed"

	EventProductDeploymentInitiated EventType = "product.deployment_initiated"
	EventProductUpgradeInitiated    EventType = "product.upgrade_initiated"
	EventProductStackStarted        EventType = "product.stack_started"
	EventProductStackCompleted      EventType = "product.stack_completed"
	EventProductStackFailed         EventType = "product.stack_failed"
	EventProductDeploymentCompleted EventType = "product.deployment_completed"
	EventProductUpgradeCompleted    EventType = "product.upgrade_completed"
	EventProductPartiallyRunning    EventType = "product.partially_running"
	EventProductDeploymentFailed    EventType = "product.deployment_failed"
	EventProductRemovalStarted      EventType = "product.removal_started"
	EventProductStackRemoved        EventType = "product.stack_removed"
	EventProductRemoved             EventType = "product.removed"
	EventProductStatusReconciled    EventType = "product.status_reconciled"
	EventProductSuperseded          EventType = "product.superseded"

	EventHealthStatusChanged EventType = "health.status_changed"
)

// Event is a fact recorded by an aggregate mutation. Aggregates never
// publish events themselves; callers drain them after a successful save.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	AggregateID string            `json:"aggregate_id"`
	Stack       string            `json:"stack,omitempty"`
	Message     string            `json:"message,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewEvent stamps a new event with an id and the current UTC time.
func NewEvent(eventType EventType, aggregateID, stack, message string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Stack:       stack,
		Message:     message,
		OccurredAt:  time.Now().UTC(),
	}
}

// With returns a copy of the event with an extra metadata entry.
func (e Event) With(key, value string) Event {
	meta := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	e.Metadata = meta
	return e
}

// EventLog accumulates pending events on an aggregate. The zero value is ready to use
// and is not serialized with the aggregate.
type EventLog struct {
	pending []Event
}

// Record appends an event to the pending list.
func (l *EventLog) Record(event Event) {
	l.pending = append(l.pending, event)
}

// PendingEvents returns a copy of the events recorded since the last drain.
func (l *EventLog) PendingEvents() []Event {
	return append([]Event(nil), l.pending...)
}

// PullEvents returns and clears the pending events.
func (l *EventLog) PullEvents() []Event {
	events := l.pending
	l.pending = nil
	return events
}
