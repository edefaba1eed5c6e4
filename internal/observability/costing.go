package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
)

// CostingMetrics records consumption report instrumentation. It satisfies
// costing.Recorder.
type CostingMetrics struct {
	duration  *prometheus.HistogramVec
	warnings  *prometheus.CounterVec
	salesRows prometheus.Counter
}

var _ costing.Recorder = (*CostingMetrics)(nil)

// NewCostingMetrics registers the report collectors on registerer.
func NewCostingMetrics(registerer prometheus.Registerer) *CostingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_costing_report_duration_seconds",
		Help:    "Consumption report generation time partitioned by catalog cache outcome.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"cache"})
	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_costing_report_warnings_total",
		Help: "Warnings attached to consumption reports by kind and code.",
	}, []string{"kind", "code"})
	rows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_costing_sales_rows_total",
		Help: "Sold line items read while generating consumption reports.",
	})
	registerer.MustRegister(duration, warnings, rows)
	return &CostingMetrics{duration: duration, warnings: warnings, salesRows: rows}
}

// ObserveReport records one generated report.
func (m *CostingMetrics) ObserveReport(cacheHit bool, duration time.Duration, salesRows int, warnings []costing.Warning) {
	if m == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.duration.WithLabelValues(cache).Observe(duration.Seconds())
	m.salesRows.Add(float64(salesRows))
	for _, w := range warnings {
		m.warnings.WithLabelValues(string(w.Kind), string(w.Code)).Inc()
	}
}
