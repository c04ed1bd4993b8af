// Package sqlitedb opens isolated in-memory SQLite databases for behavioural tests.
package sqlitedb

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var dbCounter atomic.Int64

// TestDB is a per-test in-memory database.
type TestDB struct {
	DB           *sql.DB
	DatabaseName string
}

// NewTestDB opens a fresh shared-cache in-memory database, applies ddl and
// registers cleanup. Each test gets its own database.
func NewTestDB(t *testing.T, ddl ...string) *TestDB {
	t.Helper()

	name := fmt.Sprintf("test_%s_%d", sanitizeName(t.Name()), dbCounter.Add(1))
	db, err := sql.Open("sqlite3", DSN(name))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)

	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			t.Fatalf("Failed to apply DDL %q: %v", stmt, err)
		}
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})
	return &TestDB{DB: db, DatabaseName: name}
}

// DSN returns the shared-cache in-memory DSN for name.
func DSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// Exec runs statements outside any transaction, failing the test on error.
func (d *TestDB) Exec(t *testing.T, query string, args ...any) {
	t.Helper()
	if _, err := d.DB.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// Count returns the number of rows in table.
func (d *TestDB) Count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := d.DB.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
