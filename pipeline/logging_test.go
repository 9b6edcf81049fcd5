package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/portalops/auth"
	"github.com/jonwraymond/portalops/observe"
)

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
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

func newLoggedDispatcher(t *testing.T, buf *bytes.Buffer, slow time.Duration, regs ...Registration) *Dispatcher {
	t.Helper()
	inst := observe.NewInstrumentation(nil, nil, observe.NewLoggerWithWriter("debug", buf))
	d, err := NewDispatcher(DispatcherConfig{Instrumentation: inst, SlowThreshold: slow}, regs...)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	return d
}

func TestLogging_RequestCompleted(t *testing.T) {
	var buf bytes.Buffer
	d := newLoggedDispatcher(t, &buf, time.Second, Registration{
		Descriptor: Descriptor{Kind: "documents.list"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			return "ok", nil
		},
	})
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "acct-3", Method: auth.AuthMethodJWT})

	if _, err := d.Dispatch(WithCorrelationID(ctx, "corr-9"), kindOnly("documents.list")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	entries := logEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	e := entries[0]
	if e["msg"] != "request completed" {
		t.Errorf("msg = %v", e["msg"])
	}
	if e["request.kind"] != "documents.list" {
		t.Errorf("request.kind = %v", e["request.kind"])
	}
	if e["request.correlation_id"] != "corr-9" {
		t.Errorf("request.correlation_id = %v", e["request.correlation_id"])
	}
	if e["request.actor"] != "acct-3" {
		t.Errorf("request.actor = %v", e["request.actor"])
	}
	if _, ok := e["duration_ms"]; !ok {
		t.Error("missing duration_ms")
	}
}

func TestLogging_SlowRequestFlagged(t *testing.T) {
	var buf bytes.Buffer
	d := newLoggedDispatcher(t, &buf, 10*time.Millisecond, Registration{
		Descriptor: Descriptor{Kind: "reports.slow"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return "ok", nil
		},
	})
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "p", Method: auth.AuthMethodJWT})

	if _, err := d.Dispatch(ctx, kindOnly("reports.slow")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	var slow map[string]any
	for _, e := range logEntries(t, &buf) {
		if e["msg"] == "slow request" {
			slow = e
		}
	}
	if slow == nil {
		t.Fatal("expected a slow request warning")
	}
	if slow["level"] != "warn" {
		t.Errorf("level = %v", slow["level"])
	}
	if _, ok := slow["elapsed_ms"]; !ok {
		t.Error("missing elapsed_ms")
	}
	if slow["outcome"] != "completed" {
		t.Errorf("outcome = %v, want the terminal outcome", slow["outcome"])
	}
}

func TestLogging_SlowFlaggedEvenOnFailure(t *testing.T) {
	var buf bytes.Buffer
	d := newLoggedDispatcher(t, &buf, 10*time.Millisecond, Registration{
		Descriptor: Descriptor{Kind: "reports.slowfail"},
		Handler: func(ctx context.Context, req Request) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return nil, context.DeadlineExceeded
		},
	})
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "p", Method: auth.AuthMethodJWT})

	if _, err := d.Dispatch(ctx, kindOnly("reports.slowfail")); err == nil {
		t.Fatal("expected the handler error")
	}

	sawFailed, sawSlow := false, false
	for _, e := range logEntries(t, &buf) {
		switch e["msg"] {
		case "request failed":
			sawFailed = true
		case "slow request":
			sawSlow = true
			if e["outcome"] != "failed" {
				t.Errorf("slow warning outcome = %v, want failed", e["outcome"])
			}
		}
	}
	if !sawFailed || !sawSlow {
		t.Errorf("sawFailed=%v sawSlow=%v, want both", sawFailed, sawSlow)
	}
}

func TestLogging_DescriptorThresholdOverride(t *testing.T) {
	var buf bytes.Buffer
	d := newLoggedDispatcher(t, &buf, time.Millisecond, Registration{
		Descriptor: Descriptor{
			Kind:          "reports.lenient",
			SlowThreshold: time.Second, // per-kind override wins
		},
		Handler: func(ctx context.Context, req Request) (any, error) {
			time.Sleep(10 * time.Millisecond)
			return "ok", nil
		},
	})
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{Principal: "p", Method: auth.AuthMethodJWT})

	if _, err := d.Dispatch(ctx, kindOnly("reports.lenient")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	for _, e := range logEntries(t, &buf) {
		if e["msg"] == "slow request" {
			t.Error("request under the per-kind threshold flagged as slow")
		}
	}
}
