// internal/httpserver/server.go
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/mw"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/routes"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http     *http.Server
	logger   logger.Logger
	handler  http.Handler
	listener net.Listener
}

// New builds the HTTP server (router, middlewares, route registration).
func New(cfg *config.Config, loggerClient logger.Logger, d deps.Deps) *Server {
	r := chi.NewRouter()

	// --- Global middlewares (safe defaults)
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)                 // X-Request-ID on each request
	r.Use(middleware.Recoverer)                 // never crash the process on panic
	r.Use(middleware.Timeout(5 * time.Second))  // per-request timeout
	r.Use(mw.Log(loggerClient, cfg.TrustProxy)) // structured access logs

	// Auto-register all routes
	routes.RegisterAll(r, d)

	s := &http.Server{
		Addr:              cfg.ListenPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:    s,
		logger:  loggerClient,
		handler: r,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Listen binds the listen address so a busy port fails the daemon at
// startup instead of inside the serving goroutine.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr is the bound address, useful when listening on ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.http.Addr
	}
	return s.listener.Addr().String()
}

// Start serves on the bound listener, binding first if needed. It blocks
// until error or shutdown.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Infof("HTTP server listening on %s", s.Addr())
	err := s.http.Serve(s.listener)
	// http.ErrServerClosed is expected on graceful shutdown.
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...")
	err := s.http.Shutdown(ctx)
	// Shutdown only closes listeners Serve has picked up; a Stop racing Start
	// must still free the port.
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return err
}
