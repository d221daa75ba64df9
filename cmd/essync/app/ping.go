package app

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Verify connectivity to the document store",
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := pingCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

func runPing(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Store construction pings the cluster; reaching this line means the
	// store answered.
	c, err := buildComponents(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	slog.Info("Document store is reachable", "addresses", cfg.Store.Addresses)
	return nil
}
