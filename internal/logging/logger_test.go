package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONFormatWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, JSONFormat: true, Level: slog.LevelInfo})
	logger.Info("hello", "key", "value")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected valid JSON log line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "hello" || line["key"] != "value" {
		t.Fatalf("unexpected log line contents: %v", line)
	}
}

func TestWithContext_AttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, JSONFormat: true})

	ctx := ContextWithRequestID(context.Background(), "req-123")
	logger.WithContext(ctx).Info("handled")

	if !strings.Contains(buf.String(), "req-123") {
		t.Fatalf("expected request_id in log output, got %q", buf.String())
	}
}

func TestWithContext_NoRequestIDReturnsSameLogger(t *testing.T) {
	logger := New(Config{})
	got := logger.WithContext(context.Background())
	if got != logger {
		t.Fatalf("expected the same logger when context carries no request ID")
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty request ID for a bare context")
	}
}

func TestNewRequestID_ProducesDistinctValues(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	if a == "" || b == "" || a == b {
		t.Fatalf("expected distinct non-empty request IDs, got %q and %q", a, b)
	}
}
