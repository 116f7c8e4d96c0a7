package notify

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/metrics"
	"github.com/rs/zerolog"
)

type recordingNotifier struct {
	calls  int
	events []domain.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, events []domain.Event) error {
	n.calls++
	n.events = append(n.events, events...)
	return n.err
}

func TestDryRunNotifierLogsEvents(t *testing.T) {
	var buf bytes.Buffer
	dryRun := NewDryRunNotifier(zerolog.New(&buf))

	if err := dryRun.Notify(context.Background(), makeEvents("alpha", 1)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[DRY-RUN] Would notify") || !strings.Contains(out, `"error":"manifest unknown"`) {
		t.Fatalf("unexpected log output %s", out)
	}
}

func TestMultiNotifierFansOutAndJoinsErrors(t *testing.T) {
	first := &recordingNotifier{err: errors.New("boom")}
	second := &recordingNotifier{}
	multi := NewMultiNotifier(first, nil, second)

	err := multi.Notify(context.Background(), makeEvents("alpha", 2))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected both notifiers called, got %d %d", first.calls, second.calls)
	}
	if len(second.events) != 2 {
		t.Fatalf("expected 2 events delivered, got %d", len(second.events))
	}
}

func TestMultiNotifierSkipsEmpty(t *testing.T) {
	inner := &recordingNotifier{}
	if err := NewMultiNotifier(inner).Notify(context.Background(), nil); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if inner.calls != 0 {
		t.Fatalf("expected no calls for empty events, got %d", inner.calls)
	}
}

func TestInstrumentedNotifierCountsDeliveredEvents(t *testing.T) {
	m := metrics.New()
	inner := &recordingNotifier{}
	notifier := NewInstrumented(inner, m)

	if err := notifier.Notify(context.Background(), makeEvents("alpha", 2)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `rsgo_notifications_total{type="deployment.failed"} 2`) {
		t.Fatalf("expected notification counter, got\n%s", rec.Body.String())
	}
}

func TestGroupByStack(t *testing.T) {
	events := []domain.Event{
		{Stack: "b"}, {Stack: "a"}, {Stack: "b"}, {},
	}
	groups := groupByStack(events)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0].stack != "b" || len(groups[0].events) != 2 {
		t.Fatalf("unexpected first group %+v", groups[0])
	}
	if groups[2].stack != "default" {
		t.Fatalf("expected default stack group, got %q", groups[2].stack)
	}
}
