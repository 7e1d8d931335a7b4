// Command upload sends a reference document to the LLM proxy so remedy
// prompts can retrieve from it.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"ambubot/internal/app"
	"ambubot/internal/config"
	"ambubot/internal/logging"
)

func main() {
	path := flag.String("file", "", "document to upload (defaults to document.path)")
	timeout := flag.Duration("timeout", 2*time.Minute, "upload timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stderr, logging.Options{
		Level:        cfg.Logger.Level,
		Encoding:     cfg.Logger.Encoding,
		ColorEnabled: cfg.Logger.ColorEnabled,
	})
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}

	if *path == "" {
		*path = cfg.Document.Path
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build services", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.UploadDocument(ctx, *path); err != nil {
		logger.Error("upload failed", "path", *path, "err", err)
		os.Exit(1)
	}
}
