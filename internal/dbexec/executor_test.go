package dbexec

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/internal/condition"
	"querycore/internal/queryerr"
	"querycore/internal/render"
	"querycore/internal/statement"
)

func newMock(t *testing.T, dialect render.Dialect, opts ...Option) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, dialect, opts...), mock
}

func TestInsertUsesLastInsertIDWithoutReturning(t *testing.T) {
	ex, mock := newMock(t, render.MySQL{})
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `users` (`email`) VALUES (?)")).
		WithArgs("ada@example.com").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := ex.Begin(ctx)
	require.NoError(t, err)
	res, err := tx.Exec(ctx, statement.Insert{
		Table:     "users",
		Columns:   []string{"email"},
		Rows:      [][]any{{"ada@example.com"}},
		Returning: "id",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.InsertID)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReadsReturningColumn(t *testing.T) {
	ex, mock := newMock(t, render.Postgres{})
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "users" ("email") VALUES ($1) RETURNING "id"`)).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := ex.Begin(ctx)
	require.NoError(t, err)
	res, err := tx.Exec(ctx, statement.Insert{
		Table:     "users",
		Columns:   []string{"email"},
		Rows:      [][]any{{"ada@example.com"}},
		Returning: "id",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.InsertID)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryDecodesBytesAsStrings(t *testing.T) {
	ex, mock := newMock(t, render.MySQL{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `users`.`id`, `users`.`email` FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(1), []byte("ada@example.com")).
			AddRow(int64(2), nil))

	rows, err := ex.Query(context.Background(), statement.Select{
		From:    condition.Table{Name: "users"},
		Columns: []string{"id", "email"},
		Where:   condition.True,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada@example.com", rows[0]["email"])
	assert.Nil(t, rows[1]["email"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverErrorsAreClassified(t *testing.T) {
	ex, mock := newMock(t, render.MySQL{})
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectExec("DELETE FROM `users`").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := ex.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.Exec(ctx, statement.Update{
		Table: "users",
		Set:   []statement.Assignment{{Column: "email", Value: "dup@example.com"}},
		Where: statement.IDEquals("users", "id", 1),
	})
	assert.True(t, queryerr.Is(err, queryerr.KindUniqueConstraintViolation))

	_, err = tx.Exec(ctx, statement.Delete{Table: "users", Where: statement.IDEquals("users", "id", 1)})
	assert.True(t, queryerr.Is(err, queryerr.KindConnector))
	assert.ErrorIs(t, err, assert.AnError)

	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginAppliesRole(t *testing.T) {
	ex, mock := newMock(t, render.MySQL{}, WithRole(RoleConfig{
		Role:         "app_writer",
		Database:     "blog",
		AllowedRoles: []string{"app_reader", "app_writer"},
	}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET ROLE `app_writer`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("USE `blog`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := ex.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginRejectsRole(t *testing.T) {
	t.Run("not in allowlist", func(t *testing.T) {
		ex, mock := newMock(t, render.MySQL{}, WithRole(RoleConfig{
			Role:         "root",
			AllowedRoles: []string{"app_reader"},
		}))
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := ex.Begin(context.Background())
		require.ErrorContains(t, err, "role not allowed: root")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unsupported dialect", func(t *testing.T) {
		ex, mock := newMock(t, render.SQLite{}, WithRole(RoleConfig{Role: "app_reader"}))
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := ex.Begin(context.Background())
		require.ErrorContains(t, err, "not supported by sqlite3")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRoleConfigAllowed(t *testing.T) {
	assert.True(t, RoleConfig{Role: "x"}.allowed())
	assert.True(t, RoleConfig{Role: "x", AllowedRoles: []string{"y", "x"}}.allowed())
	assert.False(t, RoleConfig{Role: "x", AllowedRoles: []string{"y"}}.allowed())
	assert.False(t, RoleConfig{}.enabled())
}
