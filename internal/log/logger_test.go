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

func TestNewJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentLedger, Output: &buf})

	logger.Info("Goal contribution recorded", FieldGoalID, 7)
	logger.Debug("hidden below level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if rec[FieldComponent] != ComponentLedger || rec[FieldGoalID] != float64(7) {
		t.Errorf("unexpected record: %v", rec)
	}
	if logger.Component() != ComponentLedger {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestNewHandlerFormats(t *testing.T) {
	for _, format := range []string{FormatText, FormatJSON, FormatTint, "bogus"} {
		var buf bytes.Buffer
		slog.New(NewHandler(&buf, format, slog.LevelInfo)).Info("hello", "k", "v")
		if !strings.Contains(buf.String(), "hello") {
			t.Errorf("format %q produced %q", format, buf.String())
		}
	}
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: FormatJSON, Output: &buf})

	logger.LogOperation(context.Background(), OpSettleBill, errors.New("already paid"),
		NewFields().WithSession(1, 2).With(FieldBillID, int64(9)))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if rec["level"] != "ERROR" || rec[FieldOperation] != OpSettleBill || rec[FieldError] != "already paid" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestFieldsToSliceIsSorted(t *testing.T) {
	got := NewFields().With("b", 2).With("a", 1).WithRequestID("").ToSlice()
	if len(got) != 4 || got[0] != "a" || got[2] != "b" {
		t.Errorf("ToSlice() = %v", got)
	}
}

func TestLogHTTPEndUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: FormatJSON, Output: &buf, Component: ComponentHTTP}).With(FieldRequestID, "req_abc")

	r := httptest.NewRequest(http.MethodPost, "/api/bills/1/settle", nil)
	ctx := NewContext(r.Context(), logger)
	FromContext(ctx).InfoContext(ctx, "inside")
	LogHTTPEnd(ctx, r, http.StatusConflict, 3, "10.0.0.1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %q", buf.String())
	}
	var end map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &end); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if end[FieldRequestID] != "req_abc" || end["level"] != "WARN" || end[FieldStatusCode] != float64(409) {
		t.Errorf("unexpected completion record: %v", end)
	}
}

func TestFromContextFallback(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" || l.Logger == nil {
		t.Errorf("unexpected fallback logger: %+v", l)
	}
}
