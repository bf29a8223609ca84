package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterMetricsRoute exposes gatherer in the Prometheus text format at path.
func RegisterMetricsRoute(mux *http.ServeMux, path string, gatherer prometheus.Gatherer) {
	if path == "" {
		path = "/metrics"
	}
	mux.Handle("GET "+path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
