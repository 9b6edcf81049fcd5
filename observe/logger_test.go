package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_StructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)
	ctx := context.Background()

	logger.Info(ctx, "cache invalidated", Field{Key: "removed", Value: 3})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["msg"] != "cache invalidated" {
		t.Errorf("msg = %v", e["msg"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v", e["level"])
	}
	if e["removed"] != float64(3) {
		t.Errorf("removed = %v", e["removed"])
	}
	if e["timestamp"] == nil {
		t.Error("missing timestamp")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "dropped")
	logger.Info(ctx, "dropped")
	logger.Warn(ctx, "kept")
	logger.Error(ctx, "kept")

	if got := len(decodeLines(t, &buf)); got != 2 {
		t.Errorf("got %d entries, want 2", got)
	}
}

func TestLogger_WithRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)
	ctx := context.Background()

	meta := RequestMeta{
		Kind:          "announcements.create",
		CorrelationID: "corr-123",
		Actor:         "acct-7",
		Mutation:      true,
	}
	logger.WithRequest(meta).Info(ctx, "request completed")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["request.kind"] != "announcements.create" {
		t.Errorf("request.kind = %v", e["request.kind"])
	}
	if e["request.correlation_id"] != "corr-123" {
		t.Errorf("request.correlation_id = %v", e["request.correlation_id"])
	}
	if e["request.actor"] != "acct-7" {
		t.Errorf("request.actor = %v", e["request.actor"])
	}
	if e["request.mutation"] != true {
		t.Errorf("request.mutation = %v", e["request.mutation"])
	}

	// The parent logger is untouched.
	buf.Reset()
	logger.Info(ctx, "bare")
	if e := decodeLines(t, &buf)[0]; e["request.kind"] != nil {
		t.Error("parent logger leaked request context")
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)
	ctx := context.Background()

	logger.Info(ctx, "authenticated",
		Field{Key: "token", Value: "super-secret"},
		Field{Key: "payload", Value: map[string]any{"ssn": "x"}},
		Field{Key: "kind", Value: "documents.list"},
	)

	e := decodeLines(t, &buf)[0]
	if e["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want redacted", e["token"])
	}
	if e["payload"] != "[REDACTED]" {
		t.Errorf("payload = %v, want redacted", e["payload"])
	}
	if e["kind"] != "documents.list" {
		t.Errorf("kind = %v, want passed through", e["kind"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
