package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/aivoice/internal/config"
	"github.com/nextlevelbuilder/aivoice/internal/store"
	"github.com/nextlevelbuilder/aivoice/internal/store/badger"
	"github.com/nextlevelbuilder/aivoice/internal/store/file"
	"github.com/nextlevelbuilder/aivoice/internal/store/pg"
	"github.com/nextlevelbuilder/aivoice/internal/store/redis"
	"github.com/nextlevelbuilder/aivoice/internal/store/sqlite"
)

// mustLoadConfig loads the config or exits with the error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the process logger. --verbose forces debug.
func setupLogging(cfg config.LoggingConfig) {
	if verbose {
		cfg.Level = "debug"
	}
	logger, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %s\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
}

// openSettingsStore opens the configured settings backend.
func openSettingsStore(ctx context.Context, cfg config.StoreConfig) (store.SettingsStore, error) {
	path := config.ExpandHome(cfg.Path)
	switch cfg.Backend {
	case store.BackendFile:
		return file.NewSettingsStore(path)
	case store.BackendSQLite:
		return sqlite.Open(path)
	case store.BackendPostgres:
		return pg.Open(cfg.PostgresDSN)
	case store.BackendRedis:
		return redis.Open(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case store.BackendBadger:
		return badger.Open(path, slog.Default())
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// mustOpenSettings opens the backend behind an AsyncWriter, or exits.
func mustOpenSettings(ctx context.Context, cfg *config.Config) *store.AsyncWriter {
	backend, err := openSettingsStore(ctx, cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s settings store: %s\n", cfg.Store.Backend, err)
		os.Exit(1)
	}
	return store.NewAsyncWriter(backend, cfg.Store.WriteQueue)
}
