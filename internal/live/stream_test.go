package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zestbet/live-engine/internal/bus"
	"github.com/zestbet/live-engine/internal/metrics"
)

// The stream must work behind the metrics middleware: the wrapped writer
// has to pass Flush through or every subscription dies with a 500.
func TestEventStreamBehindMetricsMiddleware(t *testing.T) {
	f := newFixture(t)

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/api/v1/events/stream", f.svc.HandleEventStream)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		// Publish until the subscription inside the handler is live, then
		// end the request.
		for i := 0; i < 40; i++ {
			f.bus.Publish(bus.Event{Type: bus.TypeMarketSettled, MarketID: "m1"})
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "event: "+bus.TypeMarketSettled) {
		t.Errorf("body missing settlement frame: %q", body)
	}
}
