package main

import (
	"context"
	"log/slog"
	"os"

	"clothshop/internal/config"
	"clothshop/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	database, err := db.Open(cfg)
	if err != nil {
		slog.Error("Failed to open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	applied, err := database.Migrate(context.Background())
	if err != nil {
		slog.Error("Migration failed", "applied", applied, "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations finished", "driver", cfg.DBDriver, "applied", applied)
}
