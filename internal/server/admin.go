package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/panoplyio/pgproxy/internal/metrics"
)

// AdminServer exposes /metrics on a small side listener, mirroring
// dbbouncer/internal/api's pattern of a separate HTTP server next to the
// main proxy listener. A single handler needs no router, so this uses
// net/http.ServeMux rather than gorilla/mux.
type AdminServer struct {
	httpServer *http.Server
}

// NewAdminServer builds an admin server bound to addr, serving the given
// collector's registry at /metrics.
func NewAdminServer(addr string, collector *metrics.Collector) *AdminServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}))

	return &AdminServer{
		httpServer: &http.Server{Addr: addr, Handler: mux},
	}
}

// ListenAndServe runs the admin server until Shutdown is called.
func (a *AdminServer) ListenAndServe() error {
	err := a.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}
