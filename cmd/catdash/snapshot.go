package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pretty, _ := cmd.Flags().GetBool("pretty")
	safe, _ := cmd.Flags().GetBool("safe")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := buildAggregator(cfg, nil, logger)

	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}

	if safe {
		return enc.Encode(aggregator.FetchSafe(ctx))
	}
	snap, err := aggregator.Fetch(ctx)
	if err != nil {
		return err
	}
	return enc.Encode(snap)
}
