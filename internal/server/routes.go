package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Info
	s.echo.GET("/", s.handleRoot)

	// Producer API
	s.echo.POST("/notify", s.handleNotify)
	s.echo.POST("/set", s.handleSet)

	// Subscriber websocket endpoint
	s.echo.GET("/ws", s.handleWebSocket)
}
