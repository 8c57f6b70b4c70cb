package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Absterrg0/AlertSockets/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  uptime,
		"version": version.Get(),
	})
}
