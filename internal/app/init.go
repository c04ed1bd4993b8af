package app

import (
	"context"
	"fmt"
	"log/slog"

	"querycore/internal/datamodel"
	"querycore/internal/dbexec"
	"querycore/internal/mutation"
	"querycore/internal/naming"
	"querycore/internal/render"
	"querycore/internal/writeplan"
)

// Init initializes all runtime resources. It is idempotent. On failure every
// resource acquired so far is released again.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	schema, err := datamodel.LoadFile(a.cfg.Model.Path, naming.New(a.cfg.Naming))
	if err != nil {
		return fmt.Errorf("failed to load data model: %w", err)
	}
	a.logger.Info("data model loaded",
		slog.String("path", a.cfg.Model.Path),
		slog.Int("models", len(schema.Models())),
		slog.Int("relations", len(schema.Relations())),
	)

	dialect, err := render.ForDriver(a.cfg.Database.Driver)
	if err != nil {
		return err
	}

	a.logger.Info("connecting to database",
		slog.String("driver", a.cfg.Database.Driver),
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("path", a.cfg.Database.Path),
		slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
	)

	db, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		return db.Close()
	})

	if err := waitForDatabase(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	a.logger.Info("connected to database",
		slog.String("dialect", dialect.Name()),
		slog.Int("pool_max_open", a.cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", a.cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", a.cfg.Database.Pool.MaxLifetime),
	)

	executor := dbexec.New(db, dialect, dbexec.WithRole(dbexec.RoleConfig{
		Role:         a.cfg.Database.Role,
		AllowedRoles: a.cfg.Database.AllowedRoles,
	}))

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.schema = schema
	a.executor = executor
	a.planner = writeplan.New(schema, writeplan.WithDirectiveDefaults(a.cfg.Model.Defaults))
	a.mutator = mutation.NewExecutor(schema)
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
