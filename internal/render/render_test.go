package render

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/internal/condition"
	"querycore/internal/queryerr"
	"querycore/internal/statement"
)

func intPtr(n int) *int { return &n }

func TestSelectLimitOffset(t *testing.T) {
	sel := statement.Select{
		From:    condition.Table{Name: "users"},
		Columns: []string{"id", "email"},
		Where:   condition.Compare{Column: condition.Col("users", "email"), Op: condition.OpEq, Value: "ada@example.com"},
		OrderBy: []statement.Order{{Column: condition.Col("users", "id")}},
		Limit:   intPtr(3),
		Offset:  2,
	}

	sql, args, err := New(MySQL{}).Select(sel)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `users`.`id`, `users`.`email` FROM `users` WHERE `users`.`email` = ? ORDER BY `users`.`id` ASC LIMIT 3 OFFSET 2", sql)
	assert.Equal(t, []any{"ada@example.com"}, args)

	sel.Limit = nil
	sel.OrderBy[0].Descending = true
	sql, _, err = New(SQLite{}).Select(sel)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "users"."id", "users"."email" FROM "users" WHERE "users"."email" = ? ORDER BY "users"."id" DESC LIMIT -1 OFFSET 2`, sql)

	sql, _, err = New(MySQL{}).Select(sel)
	require.NoError(t, err)
	assert.Contains(t, sql, "LIMIT 18446744073709551615 OFFSET 2")
}

func TestPostgresNumbersNestedPlaceholders(t *testing.T) {
	sel := statement.Select{
		From:    condition.Table{Name: "users"},
		Columns: []string{"id"},
		Where: condition.AndOf(
			condition.Compare{Column: condition.Col("users", "name"), Op: condition.OpEq, Value: "a"},
			condition.Exists{Select: condition.SubSelect{
				From: condition.Table{Name: "_PostAuthor", Alias: "l"},
				Where: condition.AndOf(
					condition.CompareColumns{Left: condition.Col("l", "B"), Op: condition.OpEq, Right: condition.Col("users", "id")},
					condition.Compare{Column: condition.Col("l", "A"), Op: condition.OpEq, Value: 5},
				),
			}},
		),
	}

	sql, args, err := New(Postgres{}).Select(sel)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "users"."id" FROM "users" WHERE ("users"."name" = $1 AND EXISTS (SELECT 1 FROM "_PostAuthor" AS "l" WHERE ("l"."B" = "users"."id" AND "l"."A" = $2)))`,
		sql)
	assert.Equal(t, []any{"a", 5}, args)
}

func TestConditionLeaves(t *testing.T) {
	r := New(MySQL{})
	col := condition.Col("users", "name")
	tests := []struct {
		name string
		tree condition.Tree
		sql  string
		args []any
	}{
		{name: "true", tree: condition.True, sql: "1=1"},
		{name: "false", tree: condition.False, sql: "1=0"},
		{name: "empty or", tree: condition.Or{}, sql: "1=0"},
		{name: "is null", tree: condition.IsNull{Column: col}, sql: "`users`.`name` IS NULL"},
		{name: "not", tree: condition.Not{Child: condition.IsNull{Column: col, Negated: true}}, sql: "NOT (`users`.`name` IS NOT NULL)"},
		{name: "in", tree: condition.In{Column: col, Values: []any{"a", "b"}}, sql: "`users`.`name` IN (?,?)", args: []any{"a", "b"}},
		{name: "not in", tree: condition.In{Column: col, Values: []any{"a"}, Negated: true}, sql: "`users`.`name` NOT IN (?)", args: []any{"a"}},
		{name: "like", tree: condition.Compare{Column: col, Op: condition.OpNotLike, Value: "%x"}, sql: "`users`.`name` NOT LIKE ? ESCAPE '!'", args: []any{"%x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Condition(tt.tree)
			require.NoError(t, err)
			sql, args, err := s.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}

	_, err := r.Condition(condition.Compare{Column: col, Op: condition.OpEq})
	assert.Error(t, err)
}

func TestWriteStatements(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		st      statement.Statement
		sql     string
		args    []any
	}{
		{
			name:    "insert default values",
			dialect: MySQL{},
			st:      statement.Insert{Table: "teams", Returning: "id"},
			sql:     "INSERT INTO `teams` () VALUES ()",
		},
		{
			name:    "insert default values returning",
			dialect: SQLite{},
			st:      statement.Insert{Table: "teams", Returning: "id"},
			sql:     `INSERT INTO "teams" DEFAULT VALUES RETURNING "id"`,
		},
		{
			name:    "multi-row insert returning",
			dialect: SQLite{},
			st: statement.Insert{
				Table:     "users",
				Columns:   []string{"email", "name"},
				Rows:      [][]any{{"a@x", "A"}, {"b@x", "B"}},
				Returning: "id",
			},
			sql:  `INSERT INTO "users" ("email","name") VALUES (?,?),(?,?) RETURNING "id"`,
			args: []any{"a@x", "A", "b@x", "B"},
		},
		{
			name:    "update",
			dialect: Postgres{},
			st: statement.Update{
				Table: "users",
				Set:   []statement.Assignment{{Column: "name", Value: "Ada"}},
				Where: statement.IDEquals("users", "id", 1),
			},
			sql:  `UPDATE "users" SET "name" = $1 WHERE "users"."id" = $2`,
			args: []any{"Ada", 1},
		},
		{
			name:    "delete in",
			dialect: MySQL{},
			st:      statement.Delete{Table: "posts", Where: statement.IDIn("posts", "id", []any{1, 2, 3})},
			sql:     "DELETE FROM `posts` WHERE `posts`.`id` IN (?,?,?)",
			args:    []any{1, 2, 3},
		},
		{
			name:    "delete none",
			dialect: MySQL{},
			st:      statement.Delete{Table: "posts", Where: statement.IDIn("posts", "id", nil)},
			sql:     "DELETE FROM `posts` WHERE 1=0",
		},
		{
			name:    "link",
			dialect: MySQL{},
			st:      statement.InsertLink{Table: "_PostAuthor", ParentColumn: "A", ChildColumn: "B", ParentID: 10, ChildID: 1},
			sql:     "INSERT INTO `_PostAuthor` (`A`,`B`) VALUES (?,?)",
			args:    []any{10, 1},
		},
		{
			name:    "unlink",
			dialect: SQLite{},
			st:      statement.DeleteLinks{Table: "_PostAuthor", Where: statement.IDEquals("_PostAuthor", "A", 10)},
			sql:     `DELETE FROM "_PostAuthor" WHERE "_PostAuthor"."A" = ?`,
			args:    []any{10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := New(tt.dialect).Statement(tt.st)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestStatementErrors(t *testing.T) {
	r := New(MySQL{})
	_, _, err := r.Select(statement.Select{From: condition.Table{Name: "users"}})
	assert.ErrorContains(t, err, "has no columns")
	_, _, err = r.Statement(statement.Update{Table: "users", Where: condition.True})
	assert.ErrorContains(t, err, "has no assignments")
	_, _, err = r.Statement(statement.Insert{Table: "users", Columns: []string{"a", "b"}, Rows: [][]any{{1}}})
	assert.ErrorContains(t, err, "row has 1 values for 2 columns")
}

func TestClassifyError(t *testing.T) {
	t.Run("mysql", func(t *testing.T) {
		qe := MySQL{}.ClassifyError(&mysql.MySQLError{Number: 1452, Message: "fk"})
		require.NotNil(t, qe)
		assert.Equal(t, queryerr.KindForeignKeyViolation, qe.Kind)
		assert.Equal(t, "1452", qe.Code)
		assert.Equal(t, queryerr.KindNullConstraintViolation, MySQL{}.ClassifyError(&mysql.MySQLError{Number: 1048}).Kind)
		assert.Nil(t, MySQL{}.ClassifyError(&mysql.MySQLError{Number: 1205}))
	})

	t.Run("postgres", func(t *testing.T) {
		qe := Postgres{}.ClassifyError(&pgconn.PgError{Code: "23502", Message: "null", ColumnName: "email"})
		require.NotNil(t, qe)
		assert.Equal(t, queryerr.KindNullConstraintViolation, qe.Kind)
		assert.Equal(t, "email", qe.Field)
		assert.Nil(t, Postgres{}.ClassifyError(&pgconn.PgError{Code: "40001"}))
	})

	t.Run("sqlite", func(t *testing.T) {
		qe := SQLite{}.ClassifyError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
		require.NotNil(t, qe)
		assert.Equal(t, queryerr.KindUniqueConstraintViolation, qe.Kind)
	})

	assert.Nil(t, SQLite{}.ClassifyError(errors.New("disk I/O error")))
}

func TestForDriver(t *testing.T) {
	for driver, want := range map[string]string{"mysql": "mysql", "pgx": "postgres", "sqlite3": "sqlite3"} {
		d, err := ForDriver(driver)
		require.NoError(t, err)
		assert.Equal(t, want, d.Name())
	}
	_, err := ForDriver("oracle")
	assert.Error(t, err)
}
