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
	"liquidityHouse/internal/house"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the house pool, config and tax recipients",
		RunE:  runInit,
	}

	cmd.Flags().String("owner", "", "owner address")
	cmd.Flags().String("token", "uhouse", "pool token denomination")
	cmd.Flags().Uint64("restake-rate", 500_000, "share of post-tax revenue restaked, parts per million")
	cmd.Flags().Uint64("tax-rate", 50_000, "share of revenue taxed, parts per million")
	cmd.Flags().Uint64("unbonding-seconds", 7*24*3600, "unbonding interval in seconds")
	cmd.Flags().StringSlice("tax", nil, "tax recipients as address=pct[:name] (comma-separated)")
	cmd.Flags().String("house-address", "", "house custody address")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	owner, err := config.ParseAddress(cfg.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	houseAddr, err := config.ParseAddress(cfg.HouseAddress)
	if err != nil {
		return fmt.Errorf("house address: %w", err)
	}
	hc, err := cfg.HouseConfig()
	if err != nil {
		return err
	}
	taxes, err := cfg.TaxRecipients()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := house.New(st, house.Options{Address: houseAddr, Logger: logger})
	err = eng.Init(ctx, house.InitParams{Owner: owner, Token: cfg.Token, Config: hc, Taxes: taxes})
	if err != nil {
		return err
	}

	logger.Info("init done",
		zap.String("store", cfg.Store),
		zap.String("house", houseAddr.Hex()),
		zap.Int("tax_recipients", len(taxes)),
	)
	return nil
}
