package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/datamast/essync/internal/api"
	"github.com/datamast/essync/internal/reconcile"
	"github.com/datamast/essync/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and periodic reconciliation",
	Long: `Start the admin HTTP API and, when a reconcile interval is configured,
a background loop that periodically syncs the canonical source into the
store index.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	interval, err := cfg.Reconcile.GetInterval()
	if err != nil {
		return fmt.Errorf("invalid reconcile interval: %w", err)
	}

	c, err := buildComponents(ctx, cfg, interval > 0)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	// Background reconciliation only runs when an interval is configured;
	// otherwise the process serves the admin API and reconciles on demand
	// through the reconcile command.
	var coordinator *reconcile.Coordinator
	if interval > 0 {
		runner, err := c.newRunner()
		if err != nil {
			return err
		}
		coordinator = reconcile.NewCoordinator(runner, interval)

		go func() {
			if err := coordinator.Start(context.Background()); err != nil {
				slog.Error("Reconcile coordinator failed", "error", err)
			}
		}()
	}

	metricsMiddleware, err := telemetry.MetricsMiddleware(c.telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	router := api.NewServer(c.engine, c.store,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			telemetry.TracingMiddleware(c.telemetry.TracerProvider()),
			metricsMiddleware,
			api.LoggingMiddleware,
		),
	)

	address := cfg.Server.GetAddress()
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Admin API listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("admin API server failed: %w", err)
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
	}

	if coordinator != nil {
		if err := coordinator.Stop(); err != nil {
			slog.Error("Failed to stop reconcile coordinator", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shut down", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
