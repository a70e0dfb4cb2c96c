package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityHouse/internal/bank"
	"liquidityHouse/internal/config"
	"liquidityHouse/internal/house"
	"liquidityHouse/internal/metrics"
	"liquidityHouse/internal/scenario"
	"liquidityHouse/internal/storage"
	"liquidityHouse/internal/store"
	"liquidityHouse/internal/store/memory"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a YAML scenario against an in-process bank",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}

	cmd.Flags().Bool("persist", false, "run against the configured store instead of a scratch one")
	cmd.Flags().String("events-out", "./data/events.jsonl", "output house events JSONL")
	cmd.Flags().String("metrics-out", "", "write Prometheus metrics in text format to this file")
	cmd.Flags().String("genesis-time", "", "clock origin (unix seconds or RFC3339)")
	cmd.Flags().String("house-address", "", "house custody address")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	houseAddr, err := config.ParseAddress(cfg.HouseAddress)
	if err != nil {
		return fmt.Errorf("house address: %w", err)
	}
	hc, err := cfg.HouseConfig()
	if err != nil {
		return err
	}
	start, err := config.ParseTimestamp(cfg.GenesisTime)
	if err != nil {
		return fmt.Errorf("genesis time: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store = memory.New()
	if persist, _ := cmd.Flags().GetBool("persist"); persist {
		st, err = openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	b := bank.NewMemory()
	eng := house.New(st, house.Options{
		Address: houseAddr,
		Bank:    b,
		Events:  storage.NewJsonlStorage(cfg.EventsOut),
		Metrics: metrics.New(reg),
		Logger:  logger,
	})

	logger.Info("simulate start",
		zap.String("scenario", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.String("store", cfg.Store),
		zap.String("events_out", cfg.EventsOut),
	)

	runner := &scenario.Runner{Engine: eng, Bank: b, Logger: logger, Config: hc, Start: start}
	report, runErr := runner.Run(ctx, sc)

	if cfg.MetricsOut != "" {
		if err := writeMetrics(reg, cfg.MetricsOut); err != nil {
			logger.Warn("write metrics failed", zap.Error(err))
		}
	}
	if report != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("simulate done", zap.Int("steps", report.Steps), zap.Int("events", report.Events))
	return nil
}

func writeMetrics(gatherer prometheus.Gatherer, path string) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer file.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(file, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
