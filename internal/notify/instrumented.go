package notify

import (
	"context"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/metrics"
)

// InstrumentedNotifier counts delivered events by type.
type InstrumentedNotifier struct {
	inner   Notifier
	metrics *metrics.Metrics
}

// NewInstrumented wraps inner so successful deliveries are counted.
func NewInstrumented(inner Notifier, m *metrics.Metrics) *InstrumentedNotifier {
	return &InstrumentedNotifier{inner: inner, metrics: m}
}

// Notify implements Notifier.
func (n *InstrumentedNotifier) Notify(ctx context.Context, events []domain.Event) error {
	if err := n.inner.Notify(ctx, events); err != nil {
		return err
	}
	for _, event := range events {
		n.metrics.IncNotifications(string(event.Type))
	}
	return nil
}
