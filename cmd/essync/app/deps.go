package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/datamast/essync/internal/config"
	"github.com/datamast/essync/internal/docstore"
	"github.com/datamast/essync/internal/docstore/es"
	"github.com/datamast/essync/internal/reconcile"
	"github.com/datamast/essync/internal/source"
	pkgsync "github.com/datamast/essync/internal/sync"
	"github.com/datamast/essync/internal/telemetry"
)

// components holds the wired collaborators shared by the commands. Every
// dependency is constructed here and injected; nothing is reached through
// package globals.
type components struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	store     docstore.Store
	engine    pkgsync.Engine
	provider  source.Provider
}

// loadConfig reads and validates the configuration file named by the
// command's --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Loaded configuration",
		"path", path, "index", cfg.Reconcile.Index, "source", cfg.Source.GetType())

	return cfg, nil
}

// buildComponents wires telemetry, the store client, and the sync engine.
// When withSource is set, the canonical source provider is opened as well.
func buildComponents(ctx context.Context, cfg *config.Config, withSource bool) (*components, error) {
	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	store, err := es.New(cfg.Store)
	if err != nil {
		shutdownTelemetry(ctx, tel)
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	syncMetrics, err := telemetry.NewSyncMetrics(tel.MeterProvider())
	if err != nil {
		shutdownTelemetry(ctx, tel)
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	engine := pkgsync.NewEngine(store,
		pkgsync.WithMetrics(syncMetrics),
		pkgsync.WithTracer(tel.Tracer("essync/sync")),
	)

	c := &components{
		cfg:       cfg,
		telemetry: tel,
		store:     store,
		engine:    engine,
	}

	if withSource {
		provider, err := source.NewProvider(cfg.Source)
		if err != nil {
			c.Close(ctx)
			return nil, fmt.Errorf("failed to create source provider: %w", err)
		}
		c.provider = provider
	}

	return c, nil
}

// newRunner builds the reconcile runner from the wired components.
func (c *components) newRunner() (*reconcile.Runner, error) {
	reconcileMetrics, err := telemetry.NewReconcileMetrics(c.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile metrics: %w", err)
	}

	opts := []reconcile.Option{
		reconcile.WithMetrics(reconcileMetrics),
		reconcile.WithTracer(c.telemetry.Tracer("essync/reconcile")),
	}
	if c.cfg.Reconcile.CheckpointPath != "" {
		opts = append(opts, reconcile.WithCheckpoints(
			reconcile.NewCheckpointStore(c.cfg.Reconcile.CheckpointPath)))
	}

	return reconcile.NewRunner(c.engine, c.provider, reconcile.Config{
		Index:       c.cfg.Reconcile.Index,
		LatestField: c.cfg.Reconcile.LatestField,
		Concurrency: c.cfg.Reconcile.GetConcurrency(),
		MaxAttempts: c.cfg.Reconcile.GetMaxAttempts(),
	}, opts...)
}

// Close releases everything the components hold, in reverse construction
// order.
func (c *components) Close(ctx context.Context) {
	if c.provider != nil {
		if err := c.provider.Close(); err != nil {
			slog.Error("Failed to close source provider", "error", err)
		}
	}
	shutdownTelemetry(ctx, c.telemetry)
}

func shutdownTelemetry(ctx context.Context, tel *telemetry.Telemetry) {
	if tel == nil {
		return
	}
	if err := tel.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down telemetry", "error", err)
	}
}
