// Package render turns condition trees and primitive statements into SQL text
// and bound arguments for a specific engine. The engine-specific parts live
// behind the Dialect interface; one Dialect is chosen per connection.
package render

import (
	"errors"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"querycore/internal/queryerr"
	"querycore/internal/sqlutil"
)

// Dialect captures what differs between engines.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	PlaceholderFormat() sq.PlaceholderFormat
	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool
	// DefaultValuesInsert is the clause inserting a row with only column defaults.
	DefaultValuesInsert() string
	// ApplyLimitOffset adds LIMIT/OFFSET to a select. A nil limit is unbounded.
	ApplyLimitOffset(b sq.SelectBuilder, limit *int, offset int) sq.SelectBuilder
	// ClassifyError maps a driver constraint error into the error taxonomy.
	// It returns nil when err is not a recognised constraint error.
	ClassifyError(err error) *queryerr.Error
}

// ForDriver returns the dialect for a database/sql driver name.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL{}, nil
	case "pgx", "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlite3", "sqlite":
		return SQLite{}, nil
	}
	return nil, errors.New("unsupported driver " + strconv.Quote(driver))
}

// MySQL renders for MySQL and TiDB.
type MySQL struct{}

func (MySQL) Name() string                            { return "mysql" }
func (MySQL) QuoteIdentifier(name string) string      { return sqlutil.QuoteIdentifier(name) }
func (MySQL) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (MySQL) SupportsReturning() bool                 { return false }
func (MySQL) DefaultValuesInsert() string             { return "() VALUES ()" }

func (MySQL) ApplyLimitOffset(b sq.SelectBuilder, limit *int, offset int) sq.SelectBuilder {
	switch {
	case limit != nil:
		b = b.Limit(uint64(*limit))
	case offset > 0:
		// MySQL has no OFFSET without LIMIT.
		b = b.Suffix("LIMIT 18446744073709551615")
	}
	if offset > 0 {
		if limit == nil {
			return b.Suffix("OFFSET " + strconv.Itoa(offset))
		}
		b = b.Offset(uint64(offset))
	}
	return b
}

func (MySQL) ClassifyError(err error) *queryerr.Error {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return nil
	}
	code := strconv.Itoa(int(mysqlErr.Number))
	switch mysqlErr.Number {
	case 1062:
		return queryerr.Engine(queryerr.KindUniqueConstraintViolation, mysqlErr.Message, code, err)
	case 1451, 1452:
		return queryerr.Engine(queryerr.KindForeignKeyViolation, mysqlErr.Message, code, err)
	case 1048, 1364:
		return queryerr.Engine(queryerr.KindNullConstraintViolation, mysqlErr.Message, code, err)
	}
	return nil
}

// Postgres renders for PostgreSQL through pgx.
type Postgres struct{}

func (Postgres) Name() string                            { return "postgres" }
func (Postgres) QuoteIdentifier(name string) string      { return sqlutil.QuoteANSIIdentifier(name) }
func (Postgres) PlaceholderFormat() sq.PlaceholderFormat { return sq.Dollar }
func (Postgres) SupportsReturning() bool                 { return true }
func (Postgres) DefaultValuesInsert() string             { return "DEFAULT VALUES" }

func (Postgres) ApplyLimitOffset(b sq.SelectBuilder, limit *int, offset int) sq.SelectBuilder {
	if limit != nil {
		b = b.Limit(uint64(*limit))
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	return b
}

func (Postgres) ClassifyError(err error) *queryerr.Error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	var kind queryerr.Kind
	switch pgErr.Code {
	case "23505":
		kind = queryerr.KindUniqueConstraintViolation
	case "23502":
		kind = queryerr.KindNullConstraintViolation
	case "23503":
		kind = queryerr.KindForeignKeyViolation
	default:
		return nil
	}
	qe := queryerr.Engine(kind, pgErr.Message, pgErr.Code, err)
	qe.Field = pgErr.ColumnName
	return qe
}

// SQLite renders for SQLite through mattn/go-sqlite3.
type SQLite struct{}

func (SQLite) Name() string                            { return "sqlite3" }
func (SQLite) QuoteIdentifier(name string) string      { return sqlutil.QuoteANSIIdentifier(name) }
func (SQLite) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (SQLite) SupportsReturning() bool                 { return true }
func (SQLite) DefaultValuesInsert() string             { return "DEFAULT VALUES" }

func (SQLite) ApplyLimitOffset(b sq.SelectBuilder, limit *int, offset int) sq.SelectBuilder {
	switch {
	case limit != nil:
		b = b.Limit(uint64(*limit))
	case offset > 0:
		// SQLite requires a LIMIT before OFFSET; -1 is unbounded.
		b = b.Suffix("LIMIT -1")
	}
	if offset > 0 {
		if limit == nil {
			return b.Suffix("OFFSET " + strconv.Itoa(offset))
		}
		b = b.Offset(uint64(offset))
	}
	return b
}

func (SQLite) ClassifyError(err error) *queryerr.Error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}
	code := strconv.Itoa(int(sqliteErr.ExtendedCode))
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return queryerr.Engine(queryerr.KindUniqueConstraintViolation, sqliteErr.Error(), code, err)
	case sqlite3.ErrConstraintNotNull:
		return queryerr.Engine(queryerr.KindNullConstraintViolation, sqliteErr.Error(), code, err)
	case sqlite3.ErrConstraintForeignKey:
		return queryerr.Engine(queryerr.KindForeignKeyViolation, sqliteErr.Error(), code, err)
	}
	return nil
}
