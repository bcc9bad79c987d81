package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveRequest(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("/api/v1/books/{id}", "GET", 200, 15*time.Millisecond)
	m.ObserveRequest("/api/v1/books/{id}", "GET", 200, 5*time.Millisecond)

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/books/{id}", "GET", "200"))
	if got != 2 {
		t.Errorf("http_requests_total = %v, want 2", got)
	}
}

func TestMetrics_AuthOutcome(t *testing.T) {
	m := NewMetrics()

	m.AuthOutcome("resolve", "expired")
	m.AuthOutcome("login", "success")
	m.AuthOutcome("resolve", "expired")

	if got := testutil.ToFloat64(m.authOutcomes.WithLabelValues("resolve", "expired")); got != 2 {
		t.Errorf("auth_outcomes_total{resolve,expired} = %v, want 2", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("/", "GET", 200, time.Millisecond)
	m.AuthOutcome("login", "success")
	m.CatalogEvent("book_created")
	m.SetWebSocketClients(3)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.CatalogEvent("book_created")
	m.SetWebSocketClients(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`librarium_catalog_events_total{event="book_created"} 1`,
		"librarium_websocket_clients 4",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestTracer_DisabledIsNoop(t *testing.T) {
	tracer := Tracer(false)
	ctx, span := StartSpan(context.Background(), tracer, "auth.resolve")
	if ctx == nil {
		t.Fatal("StartSpan returned nil context")
	}
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer produced a valid span context")
	}
	EndSpan(span, errors.New("boom"))
}
