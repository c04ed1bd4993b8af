package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"querycore/internal/app"
	"querycore/internal/config"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "querycore",
		Short: "Run data-model reads and writes against a relational database",
		Long: `querycore - relational query core

Reads paginated lists and runs nested, transactional writes described by a
YAML data model against MySQL, PostgreSQL or SQLite.`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	config.DefineFlags(flags)
	flags.String("metrics-out", "", "Write metrics in Prometheus text format to this file after the command (- for stdout)")
	flags.StringP("output", "o", "json", "Output format (json, yaml)")

	root.AddCommand(newReadCmd(), newWriteCmd(), newPlanCmd())
	return root
}

// withApp loads configuration, initializes the app, runs fn and releases
// every resource again, whatever fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}
	metricsOut, _ := cmd.Flags().GetString("metrics-out")
	if metricsOut != "" {
		cfg.Observability.MetricsEnabled = true
	}

	result := cfg.Validate()
	for _, warn := range result.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if result.HasErrors() {
		for _, e := range result.Errors {
			slog.Error("configuration error",
				slog.String("field", e.Field),
				slog.String("message", e.Message),
				slog.String("hint", e.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, loggerProvider, err := app.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.Init(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	if err := fn(ctx, a); err != nil {
		return err
	}
	if metricsOut != "" {
		return writeMetrics(cmd, a, metricsOut)
	}
	return nil
}

func writeMetrics(cmd *cobra.Command, a *app.App, path string) error {
	mp := a.MeterProvider()
	if mp == nil {
		return nil
	}
	var w io.Writer = cmd.OutOrStdout()
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("open metrics output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return mp.WriteText(w)
}
