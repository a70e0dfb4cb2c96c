package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityHouse/internal/config"
	"liquidityHouse/internal/store/sqlite"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the SQL schema for the configured store",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Store {
	case config.StorePostgres:
		pg, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	case config.StoreSQLite:
		// Open creates the table.
		st, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer st.Close()
	default:
		return fmt.Errorf("store %q has no schema", cfg.Store)
	}

	logger.Info("migrate done", zap.String("store", cfg.Store))
	return nil
}
