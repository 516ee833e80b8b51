package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"baserepo"
	sqlstore "baserepo/sql"
)

var pingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to the configured database",
	Long: `Load the configuration from --config and the prefixed environment
variables, connect with the matching adapter and report pool statistics.
With enable_metrics set, connection metrics are printed in the Prometheus
text format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := baserepo.LoadConfig(envPrefix, cfgFile)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		defer cancel()

		started := time.Now()
		svc, err := sqlstore.OpenWithName(ctx, &cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		stats := svc.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s in %s (open=%d idle=%d)\n",
			svc.Adapter().Name(), time.Since(started).Round(time.Millisecond), stats.OpenConnections, stats.Idle)

		if cfg.EnableMetrics {
			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewDBStatsCollector(svc.DB(), cfg.Database))
			families, err := registry.Gather()
			if err != nil {
				return err
			}
			enc := expfmt.NewEncoder(cmd.OutOrStdout(), expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, mf := range families {
				if err := enc.Encode(mf); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "connection timeout")
	rootCmd.AddCommand(pingCmd)
}
