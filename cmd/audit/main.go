// Command audit prints the most recent recorded consultations as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"ambubot/internal/audit"
	"ambubot/internal/config"
	"ambubot/internal/logging"
)

func main() {
	limit := flag.Int("n", 10, "number of consultations to list (1-50)")
	path := flag.String("db", "", "audit database (defaults to audit.path)")
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
		*path = cfg.Audit.Path
	}

	if err := run(*path, *limit); err != nil {
		logger.Error("audit listing failed", "path", *path, "err", err)
		os.Exit(1)
	}
}

func run(path string, limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := audit.Open(ctx, path)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.Latest(ctx, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
