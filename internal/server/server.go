// Package server wires the admission gate, route table and reverse proxy
// into a single HTTP server.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/draftgate/draftgate/internal/clock"
	"github.com/draftgate/draftgate/internal/config"
	"github.com/draftgate/draftgate/internal/handlers"
	"github.com/draftgate/draftgate/internal/metrics"
	"github.com/draftgate/draftgate/internal/middleware"
	"github.com/draftgate/draftgate/internal/proxy"
	"github.com/draftgate/draftgate/internal/ratelimit"
	"github.com/draftgate/draftgate/internal/routing"
	"github.com/draftgate/draftgate/pkg/logger"
)

// Server represents the HTTP server.
type Server struct {
	cfg           *config.Config
	log           *logger.Logger
	httpServer    *http.Server
	healthHandler *handlers.HealthHandler
	gate          *ratelimit.Gate
	reaper        *ratelimit.Reaper
	table         *routing.Table
	listener      net.Listener
	running       bool
	mu            sync.RWMutex
}

// New creates a new Server instance using the real clock.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	return NewWithClock(cfg, log, clock.Real{})
}

// NewWithClock creates a Server whose gate and reaper read time from clk.
func NewWithClock(cfg *config.Config, log *logger.Logger, clk clock.Clock) (*Server, error) {
	registry := ratelimit.DefaultRegistry()

	table, err := routing.Load(cfg.Rate.RoutesFile, registry)
	if err != nil {
		return nil, fmt.Errorf("load routes: %w", err)
	}

	gate := ratelimit.NewGate(registry,
		ratelimit.WithClock(clk),
		ratelimit.WithObserver(metrics.Observer{}),
	)
	reaper := ratelimit.NewReaper(gate.Store(),
		ratelimit.WithClock(clk),
		ratelimit.WithObserver(metrics.Observer{}),
		ratelimit.WithInterval(cfg.Rate.ReaperInterval),
		ratelimit.WithLogger(log.With("component", "reaper")),
	)

	s := &Server{
		cfg:           cfg,
		log:           log,
		healthHandler: handlers.NewHealthHandler(),
		gate:          gate,
		reaper:        reaper,
		table:         table,
	}
	s.healthHandler.AddCheck("reaper", reaper.Running)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// buildGatewayChain creates the middleware chain in front of the proxy.
func (s *Server) buildGatewayChain(handler http.Handler) http.Handler {
	chain := middleware.New(
		middleware.RequestID(),
		middleware.ClientIP(s.cfg.Rate.TrustProxy, s.cfg.Rate.TrustedProxies),
		middleware.AccessLog(s.log),
		middleware.Metrics(),
		middleware.RouteMatch(s.table),
	)

	if s.cfg.Rate.Enabled {
		chain = chain.Append(middleware.RateLimit(s.gate, s.log))

		for _, p := range s.gate.Registry().Policies() {
			s.log.Info("rate limit policy",
				"policy", p.Name,
				"max_requests", p.MaxRequests,
				"window", p.Window.String(),
			)
		}
	} else {
		s.log.Warn("rate limiting disabled")
	}

	return chain.Then(handler)
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Gateway's own endpoints; ServeMux prefers them over the catch-all
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /policies", handlers.NewPoliciesHandler(s.gate.Registry(), s.table).List)

	upstream := proxy.New(s.cfg.Upstream.URL, proxy.NewTransport(), s.cfg.Upstream.Timeout, s.log.With("component", "proxy"))
	mux.Handle("/", s.buildGatewayChain(upstream))
}

// Start starts the reaper and the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()

	// Create listener first to get the actual address (important when port is 0)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.reaper.Start()

	s.log.Info("server starting",
		"address", listener.Addr().String(),
		"upstream", s.cfg.Upstream.URL.String(),
	)

	err = s.httpServer.Serve(listener)
	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.reaper.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server and stops the reaper.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")

	// Mark as not ready during shutdown
	s.healthHandler.SetReady(false)

	err := s.httpServer.Shutdown(ctx)

	s.reaper.Stop()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}

	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HealthHandler returns the health handler.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}

// Gate returns the admission gate.
func (s *Server) Gate() *ratelimit.Gate {
	return s.gate
}

// Reaper returns the window reaper.
func (s *Server) Reaper() *ratelimit.Reaper {
	return s.reaper
}
