package main

import (
	"net/http"

	"github.com/uccross/skyhookdb-ceph/internal/metrics"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
)

// serveMetrics blocks serving reg's Prometheus exposition until the
// listener fails; it is started as its own goroutine by runMain and
// is never expected to return during a normal run.
func serveMetrics(addr string, reg *metrics.Registry, tracer *telemetry.Tracer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		tracer.Error(telemetry.ComponentCLI, "metrics server exited", telemetry.Fields{"addr": addr, "err": err})
	}
}
