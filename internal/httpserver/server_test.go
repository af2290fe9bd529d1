package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PratikDhanave/event-counter-service/internal/ingest"
	"github.com/PratikDhanave/event-counter-service/internal/metrics"
	"github.com/PratikDhanave/event-counter-service/internal/models"
	"github.com/PratikDhanave/event-counter-service/internal/requestid"
)

type stubBackend struct{ counts map[string]int64 }

func (s *stubBackend) SaveEvent(context.Context, models.Event) error { return nil }

func (s *stubBackend) IncrementCounter(_ context.Context, t string) (int64, error) {
	s.counts[t]++
	return s.counts[t], nil
}

func (s *stubBackend) GetCounter(_ context.Context, t string) (int64, error) {
	return s.counts[t], nil
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(rateLimit int, ready map[string]Pinger) http.Handler {
	b := &stubBackend{counts: map[string]int64{}}
	m := metrics.New()
	return NewRouter(Deps{
		Ingest:    ingest.NewService(b, b, ingest.WithMetrics(m)),
		Stats:     b,
		Metrics:   m,
		Ready:     ready,
		RateLimit: rateLimit,
	})
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validEvent = `{"user_id":42,"event_type":"page_view","timestamp":1690000000}`

func TestRoutes(t *testing.T) {
	h := newTestRouter(0, nil)

	if rec := serve(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	rec := serve(h, http.MethodPost, "/api/v1/event", validEvent)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("event: %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(requestid.Header) == "" {
		t.Fatal("missing request id header")
	}
	rec = serve(h, http.MethodGet, "/api/v1/stats/page_view", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body)
	}
	rec = serve(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `ingest_events_total{outcome="accepted"} 1`) {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })

	if rec := serve(newTestRouter(0, map[string]Pinger{"postgres": ok, "redis": ok}), http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec := serve(newTestRouter(0, map[string]Pinger{"postgres": ok, "redis": down}), http.MethodGet, "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatal("readiness leaked backend error text")
	}
	if !strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("expected failing dependency name, got %s", rec.Body)
	}
}

func TestRateLimitAppliesToIngestionOnly(t *testing.T) {
	h := newTestRouter(2, nil)

	for i := 0; i < 2; i++ {
		if rec := serve(h, http.MethodPost, "/api/v1/event", validEvent); rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, rec.Code)
		}
	}
	rec := serve(h, http.MethodPost, "/api/v1/event", validEvent)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatal("missing Retry-After")
	}

	if rec := serve(h, http.MethodGet, "/api/v1/stats/page_view", ""); rec.Code != http.StatusOK {
		t.Fatalf("stats should not be rate limited, got %d", rec.Code)
	}
}

func TestNewHTTPServer(t *testing.T) {
	srv := NewHTTPServer(":0", http.NotFoundHandler())
	if srv.Addr != ":0" || srv.ReadHeaderTimeout == 0 {
		t.Fatalf("unexpected server %+v", srv)
	}
}
