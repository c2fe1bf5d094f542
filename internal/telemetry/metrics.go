package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer serves the Prometheus registry's /metrics endpoint.
type MetricsServer struct {
	srv *http.Server
	log *zap.SugaredLogger
}

// NewMetricsServer builds an HTTP server exposing reg at addr's /metrics
// path. Call Serve to start it and Shutdown to stop it gracefully.
func NewMetricsServer(addr string, reg *prometheus.Registry, log *zap.SugaredLogger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
}

// Serve blocks, serving metrics until Shutdown closes the listener.
func (m *MetricsServer) Serve() error {
	if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully stops the metrics HTTP server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
