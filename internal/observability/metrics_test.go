package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
	jobmetrics "github.com/odyssey-erp/odyssey-costing/internal/jobs"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("costing:catalog.invalidate").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `odyssey_jobs_total{job="costing:catalog.invalidate",status="success"} 1`) {
		t.Fatalf("expected body to contain odyssey_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestCostingMetricsObserveReport(t *testing.T) {
	metrics := NewMetrics()
	costingMetrics := NewCostingMetrics(metrics.Registerer())

	costingMetrics.ObserveReport(true, 120*time.Millisecond, 42, []costing.Warning{
		{Kind: costing.KindDataIntegrity, Code: costing.CodeMissingCost},
		{Kind: costing.KindDataIntegrity, Code: costing.CodeMissingCost},
		{Kind: costing.KindComputation, Code: costing.CodeUnitCycle},
	})

	body := scrape(t, metrics)
	for _, want := range []string{
		`odyssey_costing_report_duration_seconds_count{cache="hit"} 1`,
		`odyssey_costing_report_warnings_total{code="missing_cost",kind="data_integrity"} 2`,
		`odyssey_costing_report_warnings_total{code="unit_cycle",kind="computation"} 1`,
		`odyssey_costing_sales_rows_total 42`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}
