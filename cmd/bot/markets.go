package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"signal_bot/internal/modules/bootstrap/service"
	bybit "signal_bot/internal/modules/bybit_client/service"
	"signal_bot/internal/modules/config"
	"signal_bot/pkg/logger"
)

// markets — ручная проверка доступа к бирже: топ инструментов по обороту.
func marketsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "Print the most liquid perpetual markets that pass the volume filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Exchange.RequestTimeout*3)
			defer cancel()

			wl := service.NewWatchlist(bybit.NewClient(cfg, log), cfg)
			top, total, err := wl.Top(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "SYMBOL\tPRICE\tVOLUME 24H\tCHANGE %%\n")
			for _, in := range top {
				fmt.Fprintf(w, "%s\t%g\t%.0f\t%+.2f\n", in.Symbol, in.LastPrice, in.Volume24h, in.Change24hPct)
			}
			fmt.Fprintf(w, "\n%d of %d markets above $%.0f\n", len(top), total, cfg.Scanner.MinVolume24h)
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "how many markets to print")
	return cmd
}
