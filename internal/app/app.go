// Package app owns the runtime resources behind the command line: telemetry
// providers, the instrumented database handle, the loaded data model and the
// read and write pipelines built on top of them.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"querycore/internal/config"
	"querycore/internal/datamodel"
	"querycore/internal/dbexec"
	"querycore/internal/logging"
	"querycore/internal/mutation"
	"querycore/internal/observability"
	"querycore/internal/writeplan"
)

// App owns runtime resources for one querycore process.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	metrics        *observability.QueryMetrics
	tracerProvider *observability.TracerProvider

	db       *sql.DB
	schema   *datamodel.Schema
	executor *dbexec.Executor
	planner  *writeplan.Planner
	mutator  *mutation.Executor

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Schema returns the loaded data model. It is nil before Init.
func (a *App) Schema() *datamodel.Schema {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.schema
}

// MeterProvider returns the meter provider, nil when metrics are disabled.
func (a *App) MeterProvider() *observability.MeterProvider {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.meterProvider
}

// Context attaches the logger and metrics every operation reads from its context.
func (a *App) Context(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, a.logger)
	if a.metrics != nil {
		ctx = observability.ContextWithMetrics(ctx, a.metrics)
	}
	return ctx
}

func (a *App) ready() error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if !a.initialized {
		return fmt.Errorf("app is not initialized")
	}
	return nil
}
