package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/angus/lotscout/internal/config"
	"github.com/angus/lotscout/internal/db"
)

// loadConfig merges the optional config file over the environment over
// built-in defaults, then validates the result.
func loadConfig() (config.Config, error) {
	envCfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}

	cfg := *envCfg
	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg.Merge(*envCfg)
	} else {
		cfg = cfg.Merge(config.Config{})
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// openDB connects to the database. Schema management is the migrate
// command's job; the other commands assume it has been applied.
func openDB(ctx context.Context, cfg config.Config) (*db.DB, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}
