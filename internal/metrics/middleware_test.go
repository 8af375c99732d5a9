package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/creative_collection/status/{task_id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Delete("/api/v1/creative_collection/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for _, target := range []string{
		"/api/v1/creative_collection/status/a",
		"/api/v1/creative_collection/status/b",
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/creative_collection/7", nil))

	statusRoute := "/api/v1/creative_collection/status/{task_id}"
	if got := testutil.CollectAndCount(httpRequestDurationSeconds, "http_request_duration_seconds"); got < 2 {
		t.Fatalf("expected at least two duration series, got %d", got)
	}
	if got := histogramCount(t, "GET", statusRoute); got != 2 {
		t.Errorf("expected 2 observations for %s, got %d", statusRoute, got)
	}
	if got := histogramCount(t, "DELETE", "/api/v1/creative_collection/{id}"); got != 1 {
		t.Errorf("expected 1 delete observation, got %d", got)
	}
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("DELETE", "404")); val != 1 {
		t.Errorf("expected the first status code to be recorded, got %f", val)
	}
}

func TestMiddlewareUnmatchedRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/nowhere/123", nil))

	if got := histogramCount(t, "POST", unmatchedRoute); got != 1 {
		t.Errorf("expected unmatched request to be labeled %q, got %d observations", unmatchedRoute, got)
	}
}

func histogramCount(t *testing.T, method, route string) uint64 {
	t.Helper()
	obs, err := httpRequestDurationSeconds.GetMetricWithLabelValues(method, route)
	if err != nil {
		t.Fatalf("lookup %s %s: %v", method, route, err)
	}
	h, ok := obs.(interface{ Write(*dto.Metric) error })
	if !ok {
		t.Fatalf("observer for %s %s is not a metric", method, route)
	}
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}
