package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured index's ingestion cursors",
	Long: `Query the store for the index's largest document identity and, when a
latest field is configured, the most recent value of that field. The two
cursors are independent and may come from two different documents.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := statusCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	c, err := buildComponents(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	state, err := c.engine.IndexState(ctx, cfg.Reconcile.Index, cfg.Reconcile.LatestField)
	if err != nil {
		return fmt.Errorf("failed to resolve index state: %w", err)
	}

	latest := "-"
	if state.HasLatestValue {
		latest = state.LatestValue
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Index", "Largest ID", "Latest Field", "Latest Value")
	if err := table.Append(
		cfg.Reconcile.Index,
		fmt.Sprintf("%d", state.LargestID),
		cfg.Reconcile.LatestField,
		latest,
	); err != nil {
		return fmt.Errorf("failed to render status: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render status: %w", err)
	}

	return nil
}
