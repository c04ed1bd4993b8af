package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueryMetrics holds the instruments recorded by reads and writes.
// A nil *QueryMetrics is valid and records nothing.
type QueryMetrics struct {
	writeDuration metric.Float64Histogram
	writeCounter  metric.Int64Counter
	errorCounter  metric.Int64Counter
	activeWrites  metric.Int64UpDownCounter
	statements    metric.Int64Counter
	checkFailures metric.Int64Counter
	readRows      metric.Int64Histogram
}

// InitQueryMetrics creates the instruments on the global meter provider.
func InitQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter("querycore")

	writeDuration, err := meter.Float64Histogram(
		"querycore.write.duration",
		metric.WithDescription("Duration of root write operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create write duration histogram: %w", err)
	}

	writeCounter, err := meter.Int64Counter(
		"querycore.writes.total",
		metric.WithDescription("Total number of root write operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create write counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"querycore.errors.total",
		metric.WithDescription("Total number of failed operations by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeWrites, err := meter.Int64UpDownCounter(
		"querycore.writes.active",
		metric.WithDescription("Number of write transactions in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active writes counter: %w", err)
	}

	statements, err := meter.Int64Counter(
		"querycore.statements.total",
		metric.WithDescription("Number of primitive statements issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statement counter: %w", err)
	}

	checkFailures, err := meter.Int64Counter(
		"querycore.integrity.check_failures",
		metric.WithDescription("Number of relation checks that rejected a write"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check failure counter: %w", err)
	}

	readRows, err := meter.Int64Histogram(
		"querycore.read.rows",
		metric.WithDescription("Number of rows returned by list reads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create read rows histogram: %w", err)
	}

	return &QueryMetrics{
		writeDuration: writeDuration,
		writeCounter:  writeCounter,
		errorCounter:  errorCounter,
		activeWrites:  activeWrites,
		statements:    statements,
		checkFailures: checkFailures,
		readRows:      readRows,
	}, nil
}

// RecordWrite records one root write with its duration and outcome. errorKind
// is empty on success.
func (m *QueryMetrics) RecordWrite(ctx context.Context, duration time.Duration, kind, errorKind string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", kind),
		attribute.Bool("has_errors", errorKind != ""),
	}
	m.writeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.writeCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if errorKind != "" {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", kind),
			attribute.String("error_kind", errorKind),
		))
	}
}

// RecordStatement counts one issued statement.
func (m *QueryMetrics) RecordStatement(ctx context.Context, statementType string) {
	if m == nil {
		return
	}
	m.statements.Add(ctx, 1, metric.WithAttributes(attribute.String("statement_type", statementType)))
}

// RecordCheckFailure counts a relation check that rejected a write.
func (m *QueryMetrics) RecordCheckFailure(ctx context.Context, relation string) {
	if m == nil {
		return
	}
	m.checkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("relation", relation)))
}

// RecordReadRows records the size of one list read.
func (m *QueryMetrics) RecordReadRows(ctx context.Context, count int64, model string) {
	if m == nil {
		return
	}
	m.readRows.Record(ctx, count, metric.WithAttributes(attribute.String("model", model)))
}

func (m *QueryMetrics) IncrementActiveWrites(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeWrites.Add(ctx, 1)
}

func (m *QueryMetrics) DecrementActiveWrites(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeWrites.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the QueryMetrics instance
func InitMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	metrics, err := InitQueryMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}

	logger.Info("query metrics initialized")
	return metrics, nil
}

type queryMetricsContextKey struct{}

// ContextWithMetrics stores metrics in the provided context.
func ContextWithMetrics(ctx context.Context, metrics *QueryMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, queryMetricsContextKey{}, metrics)
}

// MetricsFromContext retrieves metrics from the context, nil when absent.
func MetricsFromContext(ctx context.Context) *QueryMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(queryMetricsContextKey{}).(*QueryMetrics)
	return metrics
}
