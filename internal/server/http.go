package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/desertthunder/tapedeck/internal/shared"
)

const shutdownTimeout = 10 * time.Second

// Deps are the handlers and collaborators mounted by [New].
type Deps struct {
	Media      *MediaHandler
	API        *APIHandler
	Admin      *AdminHandler
	Authorizer Authorizer
	Metrics    http.Handler // served on /metrics when set
	Logger     *log.Logger
}

// Server is the HTTP front of the media service.
type Server struct {
	router *BasicRouter
	server *http.Server
	logger *log.Logger
}

// New wires the router, middleware and handlers for cfg.
func New(cfg shared.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	auth := deps.Authorizer
	if auth == nil {
		auth = TokenAuthorizer{Token: cfg.AdminToken}
	}

	router := NewBasicRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(shared.WithLogger(logger, "component", "http")),
		middleware.Recoverer,
	)

	if deps.Media != nil {
		router.Handler(deps.Media)
	}
	if deps.API != nil {
		router.Handler(deps.API)
	}
	if deps.Admin != nil {
		router.With(RequireAdmin(auth)).Handler(deps.Admin)
	}
	if deps.Metrics != nil {
		router.Handle(http.MethodGet, "/metrics", deps.Metrics)
	}

	// WriteTimeout stays unset unless configured: media responses stream for as long as playback reads.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{router: router, server: srv, logger: logger}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errc
}
