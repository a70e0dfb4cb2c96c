package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liquidityHouse/internal/config"
	"liquidityHouse/internal/house"
	"liquidityHouse/internal/model"
)

type inspectOutput struct {
	Owner    model.Address        `json:"owner"`
	Pool     model.Pool           `json:"pool"`
	Config   model.Config         `json:"config"`
	Metadata model.Metadata       `json:"metadata"`
	Totals   model.Totals         `json:"totals"`
	Taxes    []model.TaxRecipient `json:"taxes"`
	Accounts []model.StakeAccount `json:"accounts,omitempty"`
	Clients  []model.Client       `json:"clients,omitempty"`
	Events   []model.HouseEvent   `json:"events,omitempty"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print house state as JSON",
		RunE:  runInspect,
	}

	cmd.Flags().Int("limit", house.DefaultPageSize, "accounts and events to include")
	cmd.Flags().String("after", "", "list accounts after this address")
	cmd.Flags().Bool("clients", false, "include clients")
	return cmd
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	limit, _ := cmd.Flags().GetInt("limit")
	var cursor *model.Address
	if after, _ := cmd.Flags().GetString("after"); after != "" {
		addr, err := config.ParseAddress(after)
		if err != nil {
			return err
		}
		cursor = &addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := house.New(st, house.Options{Logger: logger})

	var out inspectOutput
	if out.Owner, err = eng.Owner(ctx); err != nil {
		return err
	}
	if out.Pool, err = eng.Pool(ctx); err != nil {
		return err
	}
	if out.Config, err = eng.Config(ctx); err != nil {
		return err
	}
	if out.Metadata, err = eng.Metadata(ctx); err != nil {
		return err
	}
	if out.Totals, err = eng.Totals(ctx); err != nil {
		return err
	}
	if out.Taxes, err = eng.TaxRecipients(ctx); err != nil {
		return err
	}
	if out.Accounts, err = eng.Accounts(ctx, cursor, limit); err != nil {
		return err
	}
	if out.Events, err = eng.Events(ctx, limit); err != nil {
		return err
	}
	if withClients, _ := cmd.Flags().GetBool("clients"); withClients {
		if out.Clients, err = eng.Clients(ctx); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
