package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Absterrg0/AlertSockets/internal/auth"
	"github.com/Absterrg0/AlertSockets/internal/config"
	apperrors "github.com/Absterrg0/AlertSockets/internal/errors"
	"github.com/Absterrg0/AlertSockets/internal/relay"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	registry    *relay.Registry
	dispatcher  *relay.Dispatcher
	keys        *auth.Keystore
	clock       clockwork.Clock
	upgrader    websocket.Upgrader
	connLimiter *GlobalConnectionLimiter
	connRate    *ConnectionRateLimiter
	startTime   time.Time
}

func NewServer(cfg *config.Config, registry *relay.Registry, dispatcher *relay.Dispatcher, keys *auth.Keystore, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:       e,
		config:     cfg,
		registry:   registry,
		dispatcher: dispatcher,
		keys:       keys,
		clock:      clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Subscribers are widgets embedded in arbitrary customer
				// websites, so every origin is legitimate.
				return true
			},
		},
		connLimiter: NewGlobalConnectionLimiter(cfg.MaxConnections),
		connRate:    NewConnectionRateLimiter(cfg.ConnRatePerSecond, cfg.ConnRateBurst),
		startTime:   clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, used by tests and embedding callers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
