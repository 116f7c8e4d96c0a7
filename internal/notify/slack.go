package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	slackMaxBlocks = 50
	// header block + context block in each message
	slackReservedBlocks = 2
	slackMaxEvents      = slackMaxBlocks - slackReservedBlocks
	slackMaxFields      = 10
)

// SlackNotifier posts events to a Slack incoming webhook using Block Kit.
type SlackNotifier struct {
	logger zerolog.Logger
	poster *httpPoster
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...Option) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &SlackNotifier{
		logger: logger,
		poster: newHTTPPoster(logger, "slack", webhookURL, s.timing),
	}
}

// Notify implements Notifier. Events are sent per stack, rate limited per stack.
func (n *SlackNotifier) Notify(ctx context.Context, events []domain.Event) error {
	for _, group := range groupByStack(events) {
		if err := n.poster.waitForRateLimit(ctx, group.stack); err != nil {
			return err
		}
		messages := buildSlackMessages(group.stack, group.events)
		for _, message := range messages {
			payload, err := json.Marshal(message)
			if err != nil {
				return fmt.Errorf("marshal slack payload: %w", err)
			}
			if err := n.poster.postWithRetry(ctx, payload); err != nil {
				return err
			}
		}
		n.logger.Debug().
			Str("stack", group.stack).
			Int("events", len(group.events)).
			Int("messages", len(messages)).
			Msg("slack notification sent")
	}
	return nil
}

func buildSlackMessages(stack string, events []domain.Event) []slack.WebhookMessage {
	total := len(events)
	if total == 0 {
		return nil
	}
	parts := (total + slackMaxEvents - 1) / slackMaxEvents
	messages := make([]slack.WebhookMessage, 0, parts)
	for i := 0; i < total; i += slackMaxEvents {
		end := min(i+slackMaxEvents, total)
		messages = append(messages, buildSlackMessage(stack, events[i:end], total, i/slackMaxEvents+1, parts))
	}
	return messages
}

func buildSlackMessage(stack string, events []domain.Event, total, part, parts int) slack.WebhookMessage {
	summary := fmt.Sprintf("Stack %s: %d event(s)", stack, total)
	if parts > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, part, parts)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, summary, false, false))
	elements := []slack.MixedElement{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("Stack: *%s*", stack), false, false),
	}
	if parts > 1 {
		elements = append(elements, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("Batch: %d/%d", part, parts), false, false))
	}

	blocks := []slack.Block{header, slack.NewContextBlock("", elements...)}
	for _, event := range events {
		blocks = append(blocks, buildEventBlock(event))
	}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func buildEventBlock(event domain.Event) slack.Block {
	title := fmt.Sprintf("*%s*", event.Type)
	if event.Message != "" {
		title += ": " + event.Message
	}
	text := slack.NewTextBlockObject(slack.MarkdownType, title, false, false)

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]*slack.TextBlockObject, 0, min(len(keys), slackMaxFields))
	for i, k := range keys {
		if i == slackMaxFields-1 && len(keys) > slackMaxFields {
			fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("_and %d more_", len(keys)-i), false, false))
			break
		}
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*%s:*\n%s", fieldLabel(k), event.Metadata[k]), false, false))
	}
	if len(fields) == 0 {
		fields = nil
	}
	return slack.NewSectionBlock(text, fields, nil)
}

func fieldLabel(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
