package dbexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/internal/filter"
	"querycore/internal/planner"
	"querycore/internal/render"
	"querycore/internal/testutil"
	"querycore/internal/testutil/sqlitedb"
)

func seedPosts(t *testing.T) *sqlitedb.TestDB {
	t.Helper()
	db := sqlitedb.NewTestDB(t, testutil.BlogSQLiteDDL...)
	for _, title := range []string{"first", "second", "third"} {
		db.Exec(t, `INSERT INTO "posts" ("title") VALUES (?)`, title)
	}
	db.Exec(t, `INSERT INTO "posts_tags" ("nodeId", "position", "value") VALUES (1, 1, 'b'), (1, 0, 'a'), (3, 0, 'z')`)
	return db
}

func TestReadAttachesListsAndDetectsMore(t *testing.T) {
	db := seedPosts(t)
	schema := testutil.BlogSchema()
	post, err := schema.Model("Post")
	require.NoError(t, err)

	plan, err := planner.BuildRead(schema, post, filter.QueryArguments{First: filter.Int(2)})
	require.NoError(t, err)

	page, err := New(db.DB, render.SQLite{}).Read(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "first", page.Rows[0]["title"])
	assert.Equal(t, []any{"a", "b"}, page.Rows[0]["tags"])
	assert.Equal(t, []any{}, page.Rows[1]["tags"])
}

func TestReadLastPageKeepsNaturalOrder(t *testing.T) {
	db := seedPosts(t)
	schema := testutil.BlogSchema()
	post, err := schema.Model("Post")
	require.NoError(t, err)

	plan, err := planner.BuildRead(schema, post, filter.QueryArguments{Last: filter.Int(5)})
	require.NoError(t, err)

	page, err := New(db.DB, render.SQLite{}).Read(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "first", page.Rows[0]["title"])
	assert.Equal(t, "third", page.Rows[2]["title"])
	assert.Equal(t, []any{"z"}, page.Rows[2]["tags"])
}

func TestReadLeavesOutHiddenFields(t *testing.T) {
	db := seedPosts(t)
	schema := testutil.BlogSchema()
	post, err := schema.Model("Post")
	require.NoError(t, err)
	for _, name := range []string{"tags", "score"} {
		f, err := post.ScalarField(name)
		require.NoError(t, err)
		f.IsHidden = true
	}

	plan, err := planner.BuildRead(schema, post, filter.QueryArguments{First: filter.Int(1)})
	require.NoError(t, err)

	page, err := New(db.DB, render.SQLite{}).Read(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "first", page.Rows[0]["title"])
	assert.NotContains(t, page.Rows[0], "tags")
	assert.NotContains(t, page.Rows[0], "score")
}
