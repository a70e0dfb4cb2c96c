package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityHouse/internal/config"
	"liquidityHouse/internal/store"
	"liquidityHouse/internal/store/memory"
	"liquidityHouse/internal/store/postgres"
	"liquidityHouse/internal/store/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "house",
		Short:        "Liquidity house ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("store", "memory", "state backend (memory, sqlite, postgres)")
	root.PersistentFlags().String("state-file", "./data/house_state.json", "memory store snapshot file")
	root.PersistentFlags().String("sqlite-path", "./data/house.db", "SQLite database path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	root.PersistentFlags().Int("max-retries", 5, "maximum connect attempts")
	root.PersistentFlags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newInitCmd())
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newMigrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by every command.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// openStore opens the configured backend. Postgres tables are created on
// open so a fresh database is usable without a separate migrate run.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.Open(cfg.StateFile)
	case config.StoreSQLite:
		return sqlite.Open(cfg.SQLitePath, logger)
	case config.StorePostgres:
		pg, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openPostgres(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Store, error) {
	return postgres.Open(ctx, cfg.PGDSN, postgres.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
}
