// Package dbexec runs rendered statements on database/sql: transactions for
// writes, paginated reads, row decoding and driver error classification.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"querycore/internal/mutation"
	"querycore/internal/queryerr"
	"querycore/internal/render"
	"querycore/internal/statement"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor is the subset of *sql.DB, *sql.Conn and *sql.Tx statements run on.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlRunner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor adapts a database/sql handle to QueryExecutor.
type StandardExecutor struct {
	runner sqlRunner
}

// NewStandardExecutor wraps a *sql.DB, *sql.Conn or *sql.Tx.
func NewStandardExecutor(runner sqlRunner) *StandardExecutor {
	return &StandardExecutor{runner: runner}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.runner == nil {
		return nil, sql.ErrConnDone
	}
	return e.runner.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.runner == nil {
		return nil, sql.ErrConnDone
	}
	return e.runner.ExecContext(ctx, query, args...)
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// Open opens an instrumented database handle for driver and registers the
// pool statistics as metrics. Extra options are appended to the defaults.
func Open(driver, dsn string, pool PoolConfig, extra ...otelsql.Option) (*sql.DB, error) {
	opts := append([]otelsql.Option{
		otelsql.WithAttributes(dbSystem(driver)),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	}, extra...)
	db, err := otelsql.Open(driver, dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystem(driver))); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register db stats metrics: %w", err)
	}
	return db, nil
}

func dbSystem(driver string) attribute.KeyValue {
	switch driver {
	case "mysql":
		return semconv.DBSystemMySQL
	case "pgx", "postgres", "postgresql":
		return semconv.DBSystemPostgreSQL
	default:
		return semconv.DBSystemSqlite
	}
}

// Executor runs statements for one dialect on a database handle.
type Executor struct {
	db       *sql.DB
	renderer *render.Renderer
	role     RoleConfig
}

// Option configures an Executor.
type Option func(*Executor)

// WithRole activates a database role on every transaction.
func WithRole(cfg RoleConfig) Option {
	return func(e *Executor) {
		e.role = cfg
	}
}

// New returns an executor rendering for dialect.
func New(db *sql.DB, dialect render.Dialect, opts ...Option) *Executor {
	e := &Executor{db: db, renderer: render.New(dialect)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Renderer returns the renderer statements are rendered with.
func (e *Executor) Renderer() *render.Renderer {
	return e.renderer
}

// Begin opens a transaction satisfying mutation.Transaction.
func (e *Executor) Begin(ctx context.Context) (mutation.Transaction, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := e.role.apply(ctx, e.renderer.Dialect(), tx); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &Tx{tx: tx, session: session{exec: NewStandardExecutor(tx), renderer: e.renderer}}, nil
}

// Query runs a select outside any transaction.
func (e *Executor) Query(ctx context.Context, sel statement.Select) ([]statement.Row, error) {
	s := session{exec: NewStandardExecutor(e.db), renderer: e.renderer}
	return s.Query(ctx, sel)
}

// Tx is one open transaction.
type Tx struct {
	tx *sql.Tx
	session
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// session renders and runs statements on one QueryExecutor.
type session struct {
	exec     QueryExecutor
	renderer *render.Renderer
}

func (s session) Query(ctx context.Context, sel statement.Select) ([]statement.Row, error) {
	query, args, err := s.renderer.Select(sel)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify(err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, s.classify(err)
	}
	return out, nil
}

func (s session) Exec(ctx context.Context, st statement.Statement) (statement.ExecResult, error) {
	query, args, err := s.renderer.Statement(st)
	if err != nil {
		return statement.ExecResult{}, err
	}
	if ins, ok := st.(statement.Insert); ok && ins.Returning != "" {
		return s.insertReturning(ctx, query, args)
	}
	res, err := s.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return statement.ExecResult{}, s.classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return statement.ExecResult{}, s.classify(err)
	}
	return statement.ExecResult{RowsAffected: affected}, nil
}

// insertReturning reads the generated id through RETURNING where the dialect
// has it, and through LastInsertId otherwise.
func (s session) insertReturning(ctx context.Context, query string, args []any) (statement.ExecResult, error) {
	if !s.renderer.Dialect().SupportsReturning() {
		res, err := s.exec.ExecContext(ctx, query, args...)
		if err != nil {
			return statement.ExecResult{}, s.classify(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return statement.ExecResult{}, s.classify(err)
		}
		return statement.ExecResult{RowsAffected: 1, InsertID: id}, nil
	}
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return statement.ExecResult{}, s.classify(err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return statement.ExecResult{}, s.classify(err)
	}
	if len(out) == 0 {
		return statement.ExecResult{}, nil
	}
	for _, v := range out[0] {
		return statement.ExecResult{RowsAffected: int64(len(out)), InsertID: v}, nil
	}
	return statement.ExecResult{RowsAffected: int64(len(out))}, nil
}

func (s session) classify(err error) error {
	if qe := s.renderer.Dialect().ClassifyError(err); qe != nil {
		return qe
	}
	return queryerr.Connector(err)
}

// scanRows decodes every row into a column-keyed map and closes rows.
// Text returned as []byte is converted to string.
func scanRows(rows Rows) (out []statement.Row, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(statement.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
