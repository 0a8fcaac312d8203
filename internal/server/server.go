// Package server exposes a running cadence loop over a JSON debug API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/cadence/internal/config"
	"github.com/me/cadence/internal/trace"
)

// Server is the cadence debug API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.Config
	startTime time.Time
	monitor   *Monitor
	traces    trace.Store // optional; nil when tracing is off
	sseEvery  time.Duration
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithTraceStore serves recorded runs under /api/v1/runs.
func WithTraceStore(st trace.Store) Option {
	return func(s *Server) {
		s.traces = st
	}
}

// WithStreamInterval sets how often /api/v1/stream polls for snapshots.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sseEvery = d
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.Config, m *Monitor, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		monitor:   m,
		sseEvery:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("debug api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger, s.monitor))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/stream", s.handleStream)

		r.Route("/loop", func(r chi.Router) {
			r.Get("/", s.handleGetLoop)
			r.Post("/pause", s.handlePauseLoop)
			r.Post("/resume", s.handleResumeLoop)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/{id}/cancel", s.handleCancelTask)
		})

		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.handleGetState)
			r.Post("/", s.handleEmitState)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Get("/{id}/events", s.handleListRunEvents)
		})
	})
}
