// Package orchestrator runs deploy, upgrade, remove and cancel commands for
// stacks and products against the aggregates and the deployment engine.
package orchestrator

import (
	"context"
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/engine"
	"github.com/readystackgo/rsgo/internal/metrics"
	"github.com/readystackgo/rsgo/internal/notify"
	"github.com/rs/zerolog"
)

// maxConflictRetries bounds reload-and-reapply attempts after a concurrency conflict.
const maxConflictRetries = 3

// Engine is the deployment capability the orchestrator drives.
type Engine interface {
	GeneratePlan(ctx context.Context, req engine.PlanRequest) (*engine.Plan, error)
	Execute(ctx context.Context, plan *engine.Plan, opts ...engine.ExecuteOption) (*engine.Result, error)
	RemoveStack(ctx context.Context, stackName string) (*engine.RemoveResult, error)
}

// Option customizes the orchestrator services.
type Option func(*common)

type common struct {
	logger   zerolog.Logger
	notifier notify.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// WithNotifier sets the notifier that receives drained domain events.
func WithNotifier(n notify.Notifier) Option {
	return func(c *common) {
		c.notifier = n
	}
}

// WithMetrics enables deployment metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *common) {
		c.metrics = m
	}
}

// WithClock overrides the clock used for durations.
func WithClock(now func() time.Time) Option {
	return func(c *common) {
		if now != nil {
			c.now = now
		}
	}
}

func newCommon(logger zerolog.Logger, opts []Option) common {
	c := common{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// dispatch hands events drained after a successful save to the notifier.
// Delivery failures are logged; the state change already happened.
func (c *common) dispatch(ctx context.Context, events []domain.Event) {
	if c.notifier == nil || len(events) == 0 {
		return
	}
	if err := c.notifier.Notify(ctx, events); err != nil {
		c.logger.Warn().Err(err).Int("events", len(events)).Msg("failed to deliver events")
	}
}

// outcome maps an execution result to a metrics label.
func outcome(res *engine.Result) string {
	switch {
	case res == nil:
		return "error"
	case res.Success:
		return "succeeded"
	case res.Cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}
