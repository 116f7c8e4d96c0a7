package notify

import (
	"context"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/rs/zerolog"
)

// DryRunNotifier logs events without delivering them.
type DryRunNotifier struct {
	logger zerolog.Logger
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger) *DryRunNotifier {
	return &DryRunNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, events []domain.Event) error {
	for _, event := range events {
		n.logger.Info().
			Str("stack", event.Stack).
			Str("event", string(event.Type)).
			Str("aggregate_id", event.AggregateID).
			Str("message", event.Message).
			Fields(metadataFields(event.Metadata)).
			Msg("[DRY-RUN] Would notify")
	}
	return nil
}

func metadataFields(metadata map[string]string) map[string]any {
	fields := make(map[string]any, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}
	return fields
}
