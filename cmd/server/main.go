package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Absterrg0/AlertSockets/internal/auth"
	"github.com/Absterrg0/AlertSockets/internal/config"
	"github.com/Absterrg0/AlertSockets/internal/keepalive"
	"github.com/Absterrg0/AlertSockets/internal/logging"
	"github.com/Absterrg0/AlertSockets/internal/relay"
	"github.com/Absterrg0/AlertSockets/internal/server"
)

func runGracefulShutdown(srv *server.Server, registry *relay.Registry, pinger *keepalive.Pinger) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		registry.Stop()

		if pinger != nil {
			pinger.Stop()
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	registry := relay.NewRegistry(clock, cfg.MonitorInterval, cfg.MaxClientsPerAccount)
	dispatcher := relay.NewDispatcher(registry)
	keys := auth.NewKeystore()

	var pinger *keepalive.Pinger
	if cfg.KeepaliveURL != "" {
		pinger = keepalive.NewPinger(cfg.KeepaliveURL, cfg.KeepaliveInterval, clock)
		pinger.Start()
		slog.Info("Keepalive pinger started", "url", cfg.KeepaliveURL, "interval", cfg.KeepaliveInterval)
	}

	srv := server.NewServer(cfg, registry, dispatcher, keys, clock)

	done := runGracefulShutdown(srv, registry, pinger)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
