package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initIndexCmd = &cobra.Command{
	Use:   "init-index",
	Short: "Create the configured index from a settings file",
	Long: `Create the store index from a JSON settings and mappings file. The
command is idempotent: an index that already exists is left untouched.`,
	RunE: runInitIndex,
}

func init() {
	initIndexCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	initIndexCmd.Flags().String("settings", "", "Path to index settings/mappings JSON file (required)")
	if err := initIndexCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
	if err := initIndexCmd.MarkFlagRequired("settings"); err != nil {
		slog.Error("Failed to mark settings flag as required", "error", err)
	}
}

func runInitIndex(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	settingsPath, err := cmd.Flags().GetString("settings")
	if err != nil {
		return fmt.Errorf("failed to read settings flag: %w", err)
	}

	settings, err := os.Open(filepath.Clean(settingsPath))
	if err != nil {
		return fmt.Errorf("failed to open settings file: %w", err)
	}
	defer settings.Close()

	c, err := buildComponents(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	index := cfg.Reconcile.Index
	created, err := c.store.EnsureIndex(ctx, index, settings)
	if err != nil {
		return fmt.Errorf("failed to ensure index %s: %w", index, err)
	}

	if created {
		slog.Info("Index created", "index", index, "settings", settingsPath)
	} else {
		slog.Info("Index already exists", "index", index)
	}

	return nil
}
