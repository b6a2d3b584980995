// Package httpserver wires the diff API and the admin API onto their two
// listeners and manages their lifecycle.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/pagediff/pagediff/internal/config"
	"github.com/pagediff/pagediff/internal/diff/pool"
	derrors "github.com/pagediff/pagediff/internal/foundation/errors"
	"github.com/pagediff/pagediff/internal/metrics"
	"github.com/pagediff/pagediff/internal/monitor"
	"github.com/pagediff/pagediff/internal/server/handlers"
	smw "github.com/pagediff/pagediff/internal/server/middleware"
	"github.com/pagediff/pagediff/internal/storage"
)

// Options carries the dependencies the servers route requests to.
type Options struct {
	Fetcher  handlers.Fetcher
	Runner   *pool.Runner
	Recorder metrics.Recorder
	// Registry enables the /metrics endpoint on the admin listener when set.
	Registry *prom.Registry
	// Store and Monitor back the admin monitoring API; both may be nil.
	Store     storage.Store
	Monitor   *monitor.Service
	StartTime time.Time
}

// Server manages the diff API and admin HTTP endpoints.
type Server struct {
	diffServer   *http.Server
	adminServer  *http.Server
	cfg          *config.Config
	opts         Options
	errorAdapter *derrors.HTTPErrorAdapter

	// Handler modules
	diffHandlers       *handlers.DiffHandlers
	monitoringHandlers *handlers.MonitoringHandlers
	pageHandlers       *handlers.PageHandlers
}

// New constructs a new HTTP server wiring instance.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("diff runner is required")
	}

	diffHandlers, err := handlers.NewDiffHandlers(&cfg.Server, opts.Fetcher, opts.Runner, opts.Recorder)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:                cfg,
		opts:               opts,
		errorAdapter:       derrors.NewHTTPErrorAdapter(slog.Default()),
		diffHandlers:       diffHandlers,
		monitoringHandlers: handlers.NewMonitoringHandlers(opts.StartTime),
	}
	if opts.Store != nil {
		s.pageHandlers = handlers.NewPageHandlers(opts.Store, opts.Monitor)
	}

	return s, nil
}

// Start pre-binds both ports so startup fails fast with aggregate errors
// instead of logging independent 'address already in use' lines after partial
// initialization, then launches the servers on their listeners.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "diff", port: s.cfg.Server.Port},
		{name: "admin", port: s.cfg.Server.AdminPort},
	}
	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		addr := fmt.Sprintf(":%d", binds[i].port)
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		// Close any successful listeners before returning
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.diffServer = &http.Server{
		Handler:           s.DiffHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.adminServer = &http.Server{
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serveOnListener("diff", s.diffServer, binds[0].ln)
	s.serveOnListener("admin", s.adminServer, binds[1].ln)

	slog.Info("HTTP servers started",
		slog.Int("diff_port", s.cfg.Server.Port),
		slog.Int("admin_port", s.cfg.Server.AdminPort))
	return nil
}

// Stop gracefully shuts down both HTTP servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}

	if s.diffServer != nil {
		if err := s.diffServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("diff server shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	slog.Info("HTTP servers stopped")
	return nil
}

// DiffHandler builds the public diff API handler, including middleware.
// Exposed for handler-level tests.
func (s *Server) DiffHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.diffHandlers.HandleIndex)
	mux.HandleFunc("GET /healthcheck", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("GET /{diffType}", s.diffHandlers.HandleDiff)

	chain := smw.Chain(slog.Default(), s.errorAdapter, s.cfg.Server.AllowedOrigins)
	return chain(mux)
}

// AdminHandler builds the admin API handler: health, Prometheus metrics, and
// the monitoring API when a version store is configured.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", s.monitoringHandlers.HandleHealthCheck)
	if s.opts.Registry != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(s.opts.Registry))
	}
	if s.pageHandlers != nil {
		mux.HandleFunc("GET /api/pages", s.pageHandlers.HandlePages)
		mux.HandleFunc("GET /api/pages/versions", s.pageHandlers.HandleVersions)
		mux.HandleFunc("POST /api/pages/check", s.pageHandlers.HandleCheck)
	}

	// No CORS on the admin listener; it is not meant for browsers.
	chain := smw.Chain(slog.Default(), s.errorAdapter, nil)
	return chain(mux)
}

// serveOnListener launches an http.Server on a pre-bound listener. It
// standardizes goroutine startup and error logging across server types.
func (s *Server) serveOnListener(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}
