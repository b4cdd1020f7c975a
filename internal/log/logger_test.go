package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentLedger, JSON: true, Output: &buf})

	logger.Info("Budget created", FieldUserID, "u1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec[FieldComponent] != ComponentLedger {
		t.Fatalf("component = %v", rec[FieldComponent])
	}
	if rec[FieldUserID] != "u1" {
		t.Fatalf("user_id = %v", rec[FieldUserID])
	}
}

func TestWithComponentSharesHandler(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentApp, Output: &buf})
	base.WithComponent(ComponentAMQP).Warn("Reconnecting")

	if !strings.Contains(buf.String(), "component=amqp") {
		t.Fatalf("expected amqp component, got %q", buf.String())
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentHTTP, Output: &buf})

	var got *Logger
	h := Middleware(logger, func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.Info("inside")
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("logger not propagated")
	}
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("request id missing: %q", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected fallback logger %+v", l)
	}
}

func TestLogFieldsSkipsNilError(t *testing.T) {
	f := NewFields().WithError(nil).WithOperation(OpCreate)
	if _, ok := f[FieldError]; ok {
		t.Fatal("nil error should not be recorded")
	}
	f.WithError(errors.New("boom"))
	if f[FieldError] != "boom" {
		t.Fatalf("error = %v", f[FieldError])
	}
}
