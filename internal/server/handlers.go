package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Absterrg0/AlertSockets/internal/domain"
	apperrors "github.com/Absterrg0/AlertSockets/internal/errors"
	"github.com/Absterrg0/AlertSockets/internal/logging"
	"github.com/Absterrg0/AlertSockets/internal/relay"
	"github.com/Absterrg0/AlertSockets/internal/version"
)

func (s *Server) handleRoot(c echo.Context) error {
	info := version.Get()
	return c.String(http.StatusOK, fmt.Sprintf("AlertSockets relay %s is running\n", info.Version))
}

// --- Producer handlers ---

func (s *Server) handleNotify(c echo.Context) error {
	var req domain.NotificationRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed notification payload")
	}
	if err := req.Validate(); err != nil {
		return apperrors.ValidationError(err.Error())
	}

	delivered, err := s.dispatcher.Dispatch(req)
	if errors.Is(err, relay.ErrNoSubscribers) {
		return apperrors.NotFoundError("No connected websites found for user").
			WithContext("droplert_id", req.DroplertID)
	}
	if err != nil {
		return apperrors.InternalError("failed to dispatch notification", err)
	}

	slog.Info("Notification accepted",
		"droplert_id", req.DroplertID,
		"websites", len(req.Websites),
		"delivered", delivered,
	)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

type setRequest struct {
	DroplertID string `json:"droplertId"`
	WebsiteURL string `json:"websiteUrl"`
}

func (s *Server) handleSet(c echo.Context) error {
	apiKey := c.Request().Header.Get("apikey")
	if apiKey == "" {
		return apperrors.UnauthorizedError("apikey header is required")
	}

	var req setRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	if strings.TrimSpace(req.DroplertID) == "" || strings.TrimSpace(req.WebsiteURL) == "" {
		return apperrors.ValidationError("droplertId and websiteUrl are required")
	}

	s.keys.SetKey(req.DroplertID, apiKey)
	s.registry.Reserve(req.DroplertID, req.WebsiteURL)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("API key stored and %s reserved for %s", req.WebsiteURL, req.DroplertID),
	})
}

// --- Subscriber websocket handler ---

var invalidSubscriptionFrame = mustMarshal(domain.SubscribeError{Error: "Invalid subscription message"})

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if !s.connRate.Allow(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "connection rate exceeded")
	}
	if !s.connLimiter.Acquire() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server at connection capacity")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.connLimiter.Release()
		slog.Warn("Failed to upgrade websocket", "remote_addr", ip, "error", err)
		return nil
	}
	defer s.connLimiter.Release()

	client := relay.NewClient(conn, s.clock, s.registry.Heartbeat)
	logger := logging.WithConnection(client.ID())
	logger.Debug("Connection accepted", "remote_addr", ip)

	// Read pump: drives the per-connection state machine. A connection starts
	// untagged, becomes subscribed on a valid control frame, and is removed
	// from the registry when the transport closes for any reason.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg domain.SubscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil || !msg.Valid() {
			// Malformed control frame: report and stay connected, the
			// client may retry.
			client.Enqueue(invalidSubscriptionFrame)
			continue
		}

		if err := s.registry.Subscribe(client, msg.DroplertID, msg.WebsiteURL); err != nil {
			client.Enqueue(mustMarshal(domain.SubscribeError{Error: err.Error()}))
			break
		}

		ack := domain.SubscribeAck{
			Success: true,
			Message: fmt.Sprintf("Subscribed to %s", msg.WebsiteURL),
		}
		client.Enqueue(mustMarshal(ack))
	}

	s.registry.Unregister(client)
	client.Close()
	logger.Debug("Connection closed")

	return nil
}
