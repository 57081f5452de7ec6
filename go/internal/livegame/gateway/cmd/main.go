package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/auth"
	"github.com/mcdev12/courtside/go/internal/config"
	"github.com/mcdev12/courtside/go/internal/games"
	"github.com/mcdev12/courtside/go/internal/livegame/broadcast"
	"github.com/mcdev12/courtside/go/internal/livegame/gateway"
	"github.com/mcdev12/courtside/go/internal/livegame/presence"
	"github.com/mcdev12/courtside/go/internal/livegame/registry"
	"github.com/mcdev12/courtside/go/internal/logging"
	"github.com/mcdev12/courtside/go/internal/models"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("info", "console")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Context for background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to set up game store")
	}
	defer closeStore()

	stats, err := setupStats(ctx, cfg, store)
	if err != nil {
		log.Fatal().Err(err).Str("mode", cfg.Stats.Mode).Msg("failed to set up stat forwarding")
	}
	defer stats.close()

	coordinator := broadcast.NewCoordinator(cfg.Session.BroadcastQueue)
	coordinatorDone := make(chan struct{})
	go func() {
		coordinator.Start(ctx)
		close(coordinatorDone)
	}()

	tracker := presence.NewTracker(coordinator)

	regCfg := registry.DefaultConfig()
	regCfg.GraceWindow = cfg.Session.GraceWindow
	regCfg.MutationTimeout = cfg.Session.MutationTimeout
	regCfg.Session.DedupeSize = cfg.Session.DedupeSize
	reg := registry.New(ctx, store, stats.forwarder, coordinator, tracker, clockwork.NewRealClock(), regCfg)

	if cfg.Listener.Enabled {
		lcfg := games.DefaultListenerConfig()
		lcfg.DatabaseURL = cfg.Database.DSN()
		lcfg.NotifyChannel = cfg.Listener.Channel
		listener, err := games.NewStatusListener(reg, lcfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start status listener")
		}
		go func() {
			if err := listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("status listener stopped")
			}
		}()
	}

	editorRoles := make([]models.UserRole, 0, len(cfg.Auth.EditorRoles))
	for _, r := range cfg.Auth.EditorRoles {
		editorRoles = append(editorRoles, models.UserRole(r))
	}
	verifier := auth.NewVerifier(auth.Config{
		Enabled:     cfg.Auth.Enabled,
		Secret:      cfg.Auth.Secret,
		EditorRoles: editorRoles,
	})

	gw := gateway.NewService(reg, coordinator, verifier, gateway.Config{
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		PongTimeout:    cfg.WebSocket.PongTimeout,
		PingInterval:   cfg.WebSocket.PingInterval,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      gw.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Driver).
			Str("stats", cfg.Stats.Mode).
			Bool("auth", cfg.Auth.Enabled).
			Dur("grace_window", cfg.Session.GraceWindow).
			Msg("live game server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// forced leaves go out before the sockets close
	reg.Shutdown(shutdownCtx)
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gateway connections did not close in time")
	}

	cancel()
	<-coordinatorDone
	stats.wait()

	log.Info().Msg("live game server shutdown complete")
}
