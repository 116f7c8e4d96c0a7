package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWebhookNotifierTemplateRendering(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL,
		`{"stack":"{{ .Stack }}","count":{{ len .Events }},"at":"{{ .GeneratedAt.Format "2006-01-02" }}"}`,
		WithClock(func() time.Time { return time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}

	if err := notifier.Notify(context.Background(), makeEvents("alpha", 1)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	for _, want := range []string{`"stack":"alpha"`, `"count":1`, `"at":"2026-05-04"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in payload, got %s", want, body)
		}
	}
}

func TestWebhookNotifierDefaultTemplate(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	if err := notifier.Notify(context.Background(), makeEvents("alpha", 1)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if !strings.Contains(body, `"type":"deployment.failed"`) {
		t.Fatalf("expected event type in payload, got %s", body)
	}
}

func TestWebhookNotifierRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "", WithTiming(fastTiming(time.Millisecond)))
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := notifier.Notify(ctx, makeEvents("alpha", 1)); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookNotifierInvalidTemplate(t *testing.T) {
	if _, err := NewWebhookNotifier(zerolog.Nop(), "http://example.com", "{{"); err == nil {
		t.Fatalf("expected template error")
	}
}

func TestWebhookNotifierWithoutURL(t *testing.T) {
	notifier, err := NewWebhookNotifier(zerolog.Nop(), "", "")
	if err != nil || notifier != nil {
		t.Fatalf("expected nil notifier and error, got %v %v", notifier, err)
	}
	if err := notifier.Notify(context.Background(), makeEvents("alpha", 1)); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}
