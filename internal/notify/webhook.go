package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{"stack":"{{ .Stack }}","events":{{ toJson .Events }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Stack       string
	Events      []domain.Event
	GeneratedAt time.Time
}

// WebhookNotifier sends events to a generic webhook rendered from a text template.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
	now      func() time.Time
}

// NewWebhookNotifier creates a webhook notifier. It returns nil without a URL.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL, tmpl string, opts ...Option) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, s.timing),
		now:      s.now,
	}, nil
}

// Notify implements Notifier. One request is posted per stack.
func (n *WebhookNotifier) Notify(ctx context.Context, events []domain.Event) error {
	if n == nil {
		return nil
	}
	for _, group := range groupByStack(events) {
		if err := n.poster.waitForRateLimit(ctx, group.stack); err != nil {
			return err
		}

		var buf bytes.Buffer
		payload := WebhookPayload{Stack: group.stack, Events: group.events, GeneratedAt: n.now().UTC()}
		if err := n.template.Execute(&buf, payload); err != nil {
			return fmt.Errorf("render webhook template: %w", err)
		}
		if err := n.poster.postWithRetry(ctx, buf.Bytes()); err != nil {
			return err
		}

		n.logger.Debug().
			Str("stack", group.stack).
			Int("events", len(group.events)).
			Msg("webhook notification sent")
	}
	return nil
}
