package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler returns an HTTP handler for Prometheus metrics endpoint
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// PrometheusServer serves /metrics on its own mux and *http.Server, rather
// than registering onto the package-level http.DefaultServeMux, so it can
// run alongside the operator API server without colliding on shared global
// state and can be shut down gracefully on engine stop.
type PrometheusServer struct {
	server *http.Server
}

// NewPrometheusServer builds a PrometheusServer bound to addr (e.g. ":9090").
func NewPrometheusServer(addr string) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", PrometheusHandler())

	return &PrometheusServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine, matching the operator
// API server's listen-in-goroutine/report-on-ErrServerClosed idiom. errFn
// receives any listen error other than a clean shutdown.
func (s *PrometheusServer) Start(errFn func(error)) {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errFn(fmt.Errorf("prometheus server: %w", err))
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *PrometheusServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
