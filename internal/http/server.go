// Package http provides the HTTP server hosting the socket endpoint and the
// health check.
package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mxaviersmp/rasa-voice-interface/internal/config"
	"github.com/mxaviersmp/rasa-voice-interface/internal/ws"
)

// Server is the HTTP server for the channel.
type Server struct {
	echo *echo.Echo
}

// NewServer creates a new HTTP server with the socket endpoint mounted at
// the configured socket path.
func NewServer(cfg *config.Config, socket *ws.Server) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo: e,
	}

	// Register routes
	e.GET("/health", s.handleHealth)
	e.GET(cfg.SocketPath, socket.HandleSocket)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
