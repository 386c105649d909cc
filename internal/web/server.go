// Package web serves the gallery and matcher over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/logger"
	"github.com/kozaktomas/face-gallery/internal/matcher"
	"github.com/kozaktomas/face-gallery/internal/recognition"
	"github.com/kozaktomas/face-gallery/internal/web/middleware"
)

// Deps are the services the API exposes. Recognizer may be nil, in which
// case the image endpoints are not routed.
type Deps struct {
	Gallery    *gallery.Gallery
	Comparator *matcher.Comparator
	Recognizer *recognition.Recognizer
	Logger     *zap.Logger
}

// Server represents the web server
type Server struct {
	deps       Deps
	log        *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(cfg config.WebConfig, deps Deps) *Server {
	r := chi.NewRouter()
	log := logger.OrNop(deps.Logger)

	s := &Server{
		deps:   deps,
		log:    log,
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
