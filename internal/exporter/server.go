package exporter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpmw "github.com/autopeer-io/polestar-exporter/internal/pkg/middleware/http"
	"github.com/autopeer-io/polestar-exporter/pkg/log"
	"github.com/autopeer-io/polestar-exporter/pkg/options"
)

const landingPage = `<html>
<head><title>Polestar Exporter</title></head>
<body>
<h1>Polestar Exporter</h1>
<p><a href="%s">Metrics</a></p>
</body>
</html>
`

// Server serves the registry for scraping together with liveness and
// readiness probes. It reads the registry on demand and never blocks the
// refresh loop.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer builds the exposition server. ready backs /readyz.
func NewServer(opts *options.HttpOptions, registry *Registry, ready func() bool) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(opts.MetricsPath, registry, ready),
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
		},
		options: opts,
	}
}

// NewRouter returns the exporter's HTTP routes.
func NewRouter(metricsPath string, registry *Registry, ready func() bool) *mux.Router {
	r := mux.NewRouter()
	r.Use(httpmw.Logging(log.WithName("http")))

	r.Handle(metricsPath, promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})).Methods(http.MethodGet)

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Ready once the vehicle client has logged in.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			http.Error(w, "vehicle client not initialized", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, landingPage, metricsPath)
	}).Methods(http.MethodGet)

	return r
}

// Listen binds the configured address. It is split from Serve so that a
// port conflict is reported before any other component starts.
func (s *Server) Listen() (net.Listener, error) {
	lis, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return lis, nil
}

// Serve serves on lis until ctx is done, then drains in-flight scrapes.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	log.Info("Polestar exporter server started", "addr", lis.Addr().String(), "metrics-path", s.options.MetricsPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Info("Polestar exporter server stopped")
		return nil
	}
}
