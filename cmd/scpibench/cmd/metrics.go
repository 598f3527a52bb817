package cmd

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-scpi/logger"
	"github.com/arloliu/go-scpi/metric"
	"github.com/arloliu/go-scpi/session"
	"github.com/arloliu/go-scpi/worker"
)

// metricsHandler bridges the engine, session and buffer counters onto a fresh
// registry and returns its scrape handler.
func metricsHandler(e *worker.Engine, mgr *session.Manager) http.Handler {
	reg := prometheus.NewRegistry()

	bridge := metric.NewBridge(reg)
	bridge.ObserveEngine(e)
	bridge.ObserveSession(mgr)
	bridge.ObserveBufferPool(mgr.Buffers())

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// serveMetrics exposes /metrics on the --metrics address for the lifetime of
// the run. A zero address disables the endpoint.
func serveMetrics(e *worker.Engine, mgr *session.Manager) {
	if metricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler(e, mgr))

	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics endpoint failed", "addr", metricsAddr, "error", err)
		}
	}()
}
