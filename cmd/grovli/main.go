package main

import (
	"fmt"
	"log/slog"
	"os"

	"grovli-client/internal/app"
	"grovli-client/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := newRootCmd(a, cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if os.Getenv("GROVLI_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
