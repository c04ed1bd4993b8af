package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"querycore/internal/render"
	"querycore/internal/sqlutil"
)

// RoleConfig selects a database role and default database activated at the
// start of every transaction. Only MySQL-compatible servers support it.
type RoleConfig struct {
	Role         string
	Database     string
	AllowedRoles []string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c RoleConfig) enabled() bool {
	return c.Role != "" || c.Database != ""
}

func (c RoleConfig) allowed() bool {
	if len(c.AllowedRoles) == 0 {
		return true
	}
	for _, r := range c.AllowedRoles {
		if r == c.Role {
			return true
		}
	}
	return false
}

// apply runs SET ROLE and USE on the transaction's connection.
func (c RoleConfig) apply(ctx context.Context, dialect render.Dialect, tx execer) error {
	if !c.enabled() {
		return nil
	}
	if dialect.Name() != "mysql" {
		return fmt.Errorf("database roles are not supported by %s", dialect.Name())
	}
	if c.Role != "" {
		if !c.allowed() {
			return fmt.Errorf("role not allowed: %s", c.Role)
		}
		// SET ROLE cannot be parameterized; the role is quoted as an identifier.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET ROLE %s", sqlutil.QuoteIdentifier(c.Role))); err != nil {
			return fmt.Errorf("failed to set role %s: %w", c.Role, err)
		}
	}
	if c.Database != "" {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("USE %s", sqlutil.QuoteIdentifier(c.Database))); err != nil {
			return fmt.Errorf("failed to select database %s: %w", c.Database, err)
		}
	}
	return nil
}
