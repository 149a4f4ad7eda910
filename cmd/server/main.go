package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/gridedit/internal/config"
	"github.com/JonMunkholm/gridedit/internal/logging"
	"github.com/JonMunkholm/gridedit/internal/sessions"
	"github.com/JonMunkholm/gridedit/internal/validation"
	"github.com/JonMunkholm/gridedit/internal/web"
)

func main() {
	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	registry := sessions.NewRegistry(sessions.Config{
		TTL:             cfg.Sessions.TTL,
		CleanupInterval: cfg.Sessions.CleanupInterval,
		MaxSessions:     cfg.Sessions.MaxTables,
		EventBuffer:     cfg.Sessions.EventBuffer,
	}, logger)
	defer registry.Close()

	server := web.NewServer(web.Deps{
		Config:     cfg,
		Sessions:   registry,
		Catalog:    validation.NewCatalog(),
		Validators: validation.NewRegistry(),
		Logger:     logger,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...", "tables", registry.Len())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		logger.Error("server stopped", "error", err)
		registry.Close()
		os.Exit(1)
	}
	logger.Info("server stopped")
}
