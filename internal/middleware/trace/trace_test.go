package trace

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Format: applog.FormatJSON, Output: &buf, Component: applog.ComponentHTTP})
	m := metrics.New()

	var seen string
	h := NewMiddleware(logger, func(*http.Request) string { return "192.0.2.1" }, m).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
			applog.FromContext(r.Context()).InfoContext(r.Context(), "handler ran")
			w.WriteHeader(http.StatusCreated)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payments", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response header = %q, want %q", rec.Header().Get(RequestIDHeader), seen)
	}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if rec[applog.FieldRequestID] != seen {
			t.Errorf("log line without request id: %v", rec)
		}
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodPost, "201")); got != 1 {
		t.Errorf("requests counter = %v, want 1", got)
	}
}

func TestMiddlewareKeepsForwardedID(t *testing.T) {
	logger := applog.New(applog.Config{Format: applog.FormatJSON, Output: &bytes.Buffer{}})
	h := NewMiddleware(logger, nil, nil).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	tests := []struct {
		name      string
		header    string
		keepsSame bool
	}{
		{"sane id", "edge-1234_abc", true},
		{"empty", "", false},
		{"injection", "abc\nfake=1", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(RequestIDHeader, tt.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if (got == tt.header) != tt.keepsSame {
				t.Errorf("got id %q for header %q", got, tt.header)
			}
		})
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", rw.statusCode)
	}
}
