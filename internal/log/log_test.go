package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"monthly-spend/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_ComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentExpense, Output: &buf})

	key := core.MonthKey{UserID: "u1", Month: 2, Year: 2024}
	l.WithFields(NewFields().WithMonth(key).WithDelta(core.Apply, decimal.NewFromInt(120))).
		Info("Delta applied")

	out := buf.String()
	for _, want := range []string{"component=expense", "user_id=u1", "month=2", "year=2024", "delta=120", "sign=apply"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	l.LogError(context.Background(), "Dispatch failed", errors.New("boom"), OpDispatch, nil)

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "error=boom") || !strings.Contains(out, "operation=dispatch") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("expected default logger")
	}

	l := New(Config{Component: ComponentWorker})
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Error("expected logger stored in context")
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	var inner *Logger
	h := Middleware(l, func(*http.Request) string { return "req-1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cards/x", nil))

	if inner == nil || inner.Component() != ComponentHTTP {
		t.Fatalf("handler did not receive http logger: %+v", inner)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "status_code=404", "request_id=req-1", "path=/api/cards/x"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
