package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/config"
	"github.com/jonathan/newsroom/internal/db"
	"github.com/jonathan/newsroom/internal/logging"
)

// loadConfig reads the config file when one is given, then applies env overrides and validates.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}

// connectDB opens the database named by config. Commands that need it fail without one.
func connectDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or database_url config is required")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// parseActor parses the --actor flag.
func parseActor(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("--actor is required")
	}
	actor, err := uuid.Parse(value)
	if err != nil || actor == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid --actor %q: must be a non-nil UUID", value)
	}
	return actor, nil
}
