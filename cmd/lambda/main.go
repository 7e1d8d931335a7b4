package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"ambubot/handler"
	"ambubot/internal/app"
	"ambubot/internal/config"
	"ambubot/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, logging.Options{
		Level:        cfg.Logger.Level,
		Encoding:     cfg.Logger.Encoding,
		ColorEnabled: cfg.Logger.ColorEnabled,
	})
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build services", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Intake, a.Location, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
