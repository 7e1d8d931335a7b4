package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ambubot/internal/app"
	"ambubot/internal/config"
	"ambubot/internal/httpserver"
	"ambubot/internal/logging"
)

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// 2. Logger
	logger, err := logging.New(os.Stdout, logging.Options{
		Level:        cfg.Logger.Level,
		Encoding:     cfg.Logger.Encoding,
		ColorEnabled: cfg.Logger.ColorEnabled,
	})
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting ambubot", "environment", cfg.Environment.Name,
		"state_backend", cfg.State.Backend, "llm_backend", cfg.LLM.Backend)

	// 3. Services
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build services", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Document.UploadOnStart {
		if err := a.UploadDocument(ctx, cfg.Document.Path); err != nil {
			// The bot still answers without retrieval context.
			logger.WarnContext(ctx, "reference document upload failed", "path", cfg.Document.Path, "err", err)
		}
	}

	// 4. HTTP server
	srv, err := httpserver.New(httpserver.Config{
		Logger:          logger,
		Port:            cfg.HTTPServer.Port,
		Mode:            cfg.HTTPServer.Mode,
		ShutdownTimeout: cfg.HTTPServer.ShutdownTimeout,
		Query:           a.Intake,
		Location:        a.Location,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create http server", "err", err)
		os.Exit(1)
	}

	// 5. Run
	if err := srv.Run(ctx); err != nil {
		logger.ErrorContext(ctx, "server stopped with error", "err", err)
		return
	}
	logger.InfoContext(ctx, "server stopped gracefully")
}
