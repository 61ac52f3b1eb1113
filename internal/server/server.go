// Package server exposes the kennisgraaf engine as an HTTP API. The server
// serializes the engine's plain data structures into JSON response
// envelopes; all domain logic stays in the engine and its packages.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbekkers/kennisgraaf"
	"github.com/jbekkers/kennisgraaf/metrics"
)

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the listen address (":8080").
	Addr string

	// APIKey protects the /api routes with bearer-token auth. Empty
	// disables authentication (development mode).
	APIKey string

	// CORSOrigins lists the allowed origins. Empty allows any origin.
	CORSOrigins []string
}

// Server wraps an echo instance around a kennisgraaf engine.
type Server struct {
	engine kennisgraaf.Engine
	echo   *echo.Echo
	cfg    Config
}

// New builds the server with its middleware chain and routes registered.
func New(engine kennisgraaf.Engine, cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins(cfg.CORSOrigins),
	}))
	e.Use(middleware.BodyLimit("10M"))
	e.Use(requestLogger())

	s := &Server{engine: engine, echo: e, cfg: cfg}
	s.registerRoutes()
	return s
}

func allowOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// requestLogger logs every request through slog and feeds the HTTP request
// counter. Route is the registered pattern, not the raw path, to keep the
// metric cardinality bounded.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http: request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Millisecond))
			metrics.HTTPRequests.WithLabelValues(
				v.Method, c.Path(), fmt.Sprintf("%dxx", v.Status/100)).Inc()
			return nil
		},
	})
}

// bearerAuth rejects /api requests without the configured bearer token.
func bearerAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") || auth[len("Bearer "):] != token {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			}
			return next(c)
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var apiMiddleware []echo.MiddlewareFunc
	if s.cfg.APIKey != "" {
		apiMiddleware = append(apiMiddleware, bearerAuth(s.cfg.APIKey))
	}
	api := s.echo.Group("/api", apiMiddleware...)

	api.POST("/documents", s.createDocument)
	api.POST("/documents/batch", s.createDocumentBatch)
	api.GET("/documents", s.listDocuments)
	api.DELETE("/documents/:id", s.deleteDocument)
	api.GET("/documents/:id/suggestion", s.getSuggestion)

	api.POST("/suggest", s.createDocument)
	api.POST("/assess", s.assess)
	api.GET("/assessments", s.listAssessments)

	api.GET("/search", s.search)
	api.GET("/search/similar/:id", s.similar)

	api.GET("/graph/stats", s.graphStats)
	api.GET("/graph/communities", s.graphCommunities)
	api.GET("/graph/path", s.graphPath)
	api.GET("/graph/nodes/:id/neighbors", s.graphNeighbors)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: starting", "addr", s.cfg.Addr, "auth", s.cfg.APIKey != "")
		if err := s.echo.Start(s.cfg.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
