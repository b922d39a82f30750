// Package metrics exposes the orchestrator's running counters to
// Prometheus, on a private registry so a library user embedding this
// package never collides with the default global one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric a single run registers. Every field is
// actually updated during a run: InFlight by the dispatcher as
// requests go out and complete, the three counters and the histogram
// by the worker pool as each completion is evaluated.
type Registry struct {
	reg *prometheus.Registry

	InFlight       prometheus.Gauge
	ResultCount    prometheus.Counter
	RowsReturned   prometheus.Counter
	NRowsProcessed prometheus.Counter
	Eval2Duration  prometheus.Histogram
}

// NewRegistry constructs and registers every metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skyhook_in_flight",
			Help: "Number of storage requests currently outstanding.",
		}),
		ResultCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyhook_result_count_total",
			Help: "Total number of rows counted toward the final result across all evaluated objects.",
		}),
		RowsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyhook_rows_returned_total",
			Help: "Total number of rows observed in returned payloads, regardless of where filtering happened.",
		}),
		NRowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyhook_nrows_processed_total",
			Help: "Total number of rows processed: rows walked client-side plus rows a pushdown response reports the server processed.",
		}),
		Eval2Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skyhook_eval2_duration_seconds",
			Help:    "Per-completion client-side decode+evaluate duration (eval2_ns).",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.InFlight, r.ResultCount, r.RowsReturned, r.NRowsProcessed, r.Eval2Duration)
	return r
}

// Handler returns an http.Handler serving this registry in the
// Prometheus exposition format, for --metrics-addr.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
