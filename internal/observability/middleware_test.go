package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetricsCollector()

	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("GET", "/v1/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got := counterValue(t, metrics.Registry, "kazi_http_requests_total", prometheus.Labels{
		"method":      "GET",
		"path":        "/v1/tasks",
		"status_code": "200",
	})
	if got != 1 {
		t.Errorf("kazi_http_requests_total = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddleware_ErrorStatus(t *testing.T) {
	metrics := NewMetricsCollector()

	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("DELETE", "/v1/tasks/9", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	got := counterValue(t, metrics.Registry, "kazi_http_requests_total", prometheus.Labels{
		"method":      "DELETE",
		"status_code": "404",
	})
	if got != 1 {
		t.Errorf("kazi_http_requests_total{404} = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	// Should not panic with nil metrics.
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
