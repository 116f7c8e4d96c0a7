// Package notify delivers domain events to external systems.
package notify

import (
	"context"
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
)

// Notifier delivers domain events to external systems.
type Notifier interface {
	Notify(ctx context.Context, events []domain.Event) error
}

// Option customizes HTTP-backed notifiers.
type Option func(*settings)

type settings struct {
	timing Timing
	now    func() time.Time
}

func defaultSettings() settings {
	return settings{timing: DefaultTiming, now: time.Now}
}

// WithTiming overrides rate limiting and retry timing (primarily for testing).
func WithTiming(timing Timing) Option {
	return func(s *settings) {
		s.timing = timing
	}
}

// WithClock overrides the clock used to stamp payloads.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// stackEvents is the events of one stack in arrival order.
type stackEvents struct {
	stack  string
	events []domain.Event
}

// groupByStack groups events by stack, keeping first-seen stack order.
func groupByStack(events []domain.Event) []stackEvents {
	index := map[string]int{}
	groups := make([]stackEvents, 0)
	for _, event := range events {
		stack := event.Stack
		if stack == "" {
			stack = "default"
		}
		i, ok := index[stack]
		if !ok {
			i = len(groups)
			index[stack] = i
			groups = append(groups, stackEvents{stack: stack})
		}
		groups[i].events = append(groups[i].events, event)
	}
	return groups
}
