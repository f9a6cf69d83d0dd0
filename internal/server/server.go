// Package server exposes the HTTP boundary: the chat proxy endpoint,
// health, and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/higherself-ai/higherself/internal/orchestrator"
	"github.com/higherself-ai/higherself/pkg/observability"
)

// Options holds configuration for the HTTP server.
type Options struct {
	Port       int
	CORSOrigin string

	// RatePerMinute caps requests per client IP (default 60).
	RatePerMinute int
	RateBurst     int

	Composer  orchestrator.Composer
	Completer orchestrator.Completer
	Health    *observability.HealthChecker
}

// maxBodyBytes limits request body size to 1 MiB.
const maxBodyBytes = 1 << 20

// Server wraps the gin engine and the underlying http.Server.
type Server struct {
	engine *gin.Engine
	opts   Options
}

// New assembles the router with all middleware and routes.
func New(opts Options) *Server {
	if opts.Port <= 0 {
		opts.Port = 5000
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 60
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = opts.RatePerMinute
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(opts.CORSOrigin))
	engine.Use(metricsMiddleware())
	engine.Use(bodyLimitMiddleware(maxBodyBytes))

	s := &Server{engine: engine, opts: opts}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.Use(rateLimitMiddleware(s.opts.RatePerMinute, s.opts.RateBurst))
	api.POST("/chat/send", s.handleChatSend)

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse("Resource not found", "NOT_FOUND"))
	})
}

// Handler returns the assembled handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
