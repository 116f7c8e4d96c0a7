package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"DeBuG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"\twarn\n": zerolog.WarnLevel,
		" error ":  zerolog.ErrorLevel,
		"fatal":    zerolog.FatalLevel,
		"PANIC":    zerolog.PanicLevel,
		"":         zerolog.InfoLevel,
		"verbose":  zerolog.InfoLevel,
		"123":      zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := NewWithLevel(input).GetLevel(); got != want {
			t.Errorf("NewWithLevel(%q) = %v, want %v", input, got, want)
		}
	}
	if New().GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected New to log at info level")
	}
}

func TestNewWriter_JSONFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "warn", false)
	logger.Info().Msg("skipped")
	logger.Warn().Str("stack", "shop").Msg("pull fallback")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one entry, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON entry: %v", err)
	}
	if entry["stack"] != "shop" || entry["level"] != "warn" || entry["time"] == nil {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestWithComponent_AddsField(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewWriter(&buf, "debug", false), "engine")
	logger.Info().Msg("planned")

	if !strings.Contains(buf.String(), `"component":"engine"`) {
		t.Fatalf("expected component field, got %s", buf.String())
	}
}

func TestNewWriter_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "info", true)
	logger.Info().Str("stack", "shop").Msg("deployed")

	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "deployed") || !strings.Contains(out, "stack=") {
		t.Fatalf("expected console output, got %q", out)
	}
}
