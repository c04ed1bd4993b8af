package mutation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/internal/datamodel"
	"querycore/internal/queryerr"
	"querycore/internal/statement"
	"querycore/internal/testutil"
	"querycore/internal/writeplan"
)

// recordingTx logs every statement it receives. Selects return the canned rows
// registered for their table; inserts asking for an id get sequential ids.
type recordingTx struct {
	log        []string
	rows       map[string][]statement.Row
	nextID     int64
	failOn     string
	committed  bool
	rolledBack bool
}

func newRecordingTx() *recordingTx {
	return &recordingTx{rows: map[string][]statement.Row{}, nextID: 9}
}

func (f *recordingTx) Begin(context.Context) (Transaction, error) { return f, nil }
func (f *recordingTx) Commit() error                               { f.committed = true; return nil }
func (f *recordingTx) Rollback() error                             { f.rolledBack = true; return nil }

func (f *recordingTx) Query(_ context.Context, sel statement.Select) ([]statement.Row, error) {
	f.log = append(f.log, sel.Describe())
	return f.rows[sel.From.Name], nil
}

func (f *recordingTx) Exec(_ context.Context, st statement.Statement) (statement.ExecResult, error) {
	d := st.Describe()
	f.log = append(f.log, d)
	if d == f.failOn {
		return statement.ExecResult{}, errors.New("connection reset")
	}
	if ins, ok := st.(statement.Insert); ok && ins.Returning != "" {
		f.nextID++
		return statement.ExecResult{RowsAffected: 1, InsertID: f.nextID}, nil
	}
	return statement.ExecResult{RowsAffected: 1}, nil
}

func setup(t *testing.T) (*writeplan.Planner, *Executor, *datamodel.Schema) {
	t.Helper()
	schema := testutil.BlogSchema()
	p := writeplan.New(schema, writeplan.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	return p, NewExecutor(schema), schema
}

func mustModel(t *testing.T, schema *datamodel.Schema, name string) *datamodel.Model {
	t.Helper()
	m, err := schema.Model(name)
	require.NoError(t, err)
	return m
}

func TestCreateStatementOrder(t *testing.T) {
	p, ex, schema := setup(t)
	post := mustModel(t, schema, "Post")
	tx := newRecordingTx()
	tx.rows["users"] = []statement.Row{{"id": int64(1)}}

	root, err := p.PlanCreate(post, map[string]any{
		"title":  "Hello",
		"tags":   []any{"a", "b"},
		"author": map[string]any{"connect": map[string]any{"id": 1}},
	})
	require.NoError(t, err)

	res, err := ex.Run(context.Background(), tx, root)
	require.NoError(t, err)
	assert.Equal(t, Identifier{Kind: IdentifierID, ID: int64(10)}, res.Identifier)
	assert.Equal(t, "Post", res.Model)
	assert.True(t, tx.committed)
	assert.Equal(t, []string{
		"insert posts (1 rows)",
		"select users",
		"unlink _PostAuthor",
		"link _PostAuthor (10, 1)",
		"delete posts_tags",
		"insert posts_tags (2 rows)",
	}, tx.log)
}

func TestNestedCategoryOrder(t *testing.T) {
	p, ex, schema := setup(t)
	user := mustModel(t, schema, "User")
	tx := newRecordingTx()
	tx.rows["users"] = []statement.Row{{"id": int64(1)}}
	tx.rows["posts"] = []statement.Row{{"id": int64(2)}}
	tx.rows["_PostAuthor"] = []statement.Row{{"B": int64(1)}}

	root, err := p.PlanUpdate(user, datamodel.IDFinder(user, int64(1)), map[string]any{
		"posts": map[string]any{
			"deleteMany": map[string]any{"title": "old"},
			"disconnect": []any{map[string]any{"id": 3}},
			"connect":    []any{map[string]any{"id": 2}},
			"create":     map[string]any{"title": "new"},
		},
	})
	require.NoError(t, err)

	_, err = ex.Run(context.Background(), tx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"select users",
		// create
		"insert posts (1 rows)",
		"link _PostAuthor (1, 10)",
		// connect
		"select posts",
		"unlink _PostAuthor",
		"link _PostAuthor (1, 2)",
		// disconnect
		"select posts",
		"select _PostAuthor",
		"unlink _PostAuthor",
		// deleteMany
		"select posts",
		"unlink _PostAuthor",
		"unlink _PostCategories",
		"delete posts_tags",
		"delete posts",
	}, tx.log)
}

func TestRunRollsBackOnFailure(t *testing.T) {
	p, ex, schema := setup(t)
	post := mustModel(t, schema, "Post")
	tx := newRecordingTx()
	tx.rows["users"] = []statement.Row{{"id": int64(1)}}
	tx.failOn = "link _PostAuthor (10, 1)"

	root, err := p.PlanCreate(post, map[string]any{
		"title":  "Hello",
		"author": map[string]any{"connect": map[string]any{"id": 1}},
	})
	require.NoError(t, err)

	_, err = ex.Run(context.Background(), tx, root)
	require.Error(t, err)
	assert.True(t, queryerr.Is(err, queryerr.KindConnector))
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
	assert.Equal(t, "link _PostAuthor (10, 1)", tx.log[len(tx.log)-1])
}

func TestUpdateMissingRecord(t *testing.T) {
	p, ex, schema := setup(t)
	user := mustModel(t, schema, "User")
	tx := newRecordingTx()

	root, err := p.PlanUpdate(user, datamodel.IDFinder(user, int64(7)), map[string]any{"name": "x"})
	require.NoError(t, err)

	_, err = ex.Run(context.Background(), tx, root)
	var qe *queryerr.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, queryerr.KindRecordNotFound, qe.Kind)
	assert.Equal(t, []any{int64(7)}, qe.IDs)
	assert.Equal(t, []string{"select users"}, tx.log)
}

func TestUpsertChoosesBranch(t *testing.T) {
	p, ex, schema := setup(t)
	user := mustModel(t, schema, "User")
	where, err := datamodel.NewRecordFinder(user, "email", "ada@example.com")
	require.NoError(t, err)
	root, err := p.PlanUpsert(user, where,
		map[string]any{"email": "ada@example.com"},
		map[string]any{"name": "Ada"},
	)
	require.NoError(t, err)

	t.Run("creates when absent", func(t *testing.T) {
		tx := newRecordingTx()
		res, err := ex.Execute(context.Background(), tx, root)
		require.NoError(t, err)
		assert.Equal(t, int64(10), res.Identifier.ID)
		assert.Equal(t, []string{"select users", "insert users (1 rows)"}, tx.log)
	})

	t.Run("updates when present", func(t *testing.T) {
		tx := newRecordingTx()
		tx.rows["users"] = []statement.Row{{"id": int64(4)}}
		res, err := ex.Execute(context.Background(), tx, root)
		require.NoError(t, err)
		assert.Equal(t, int64(4), res.Identifier.ID)
		assert.Equal(t, []string{"select users", "update users"}, tx.log)
	})
}

func TestManyResultsAndReset(t *testing.T) {
	p, ex, schema := setup(t)
	post := mustModel(t, schema, "Post")

	tx := newRecordingTx()
	tx.rows["posts"] = []statement.Row{{"id": int64(1)}, {"id": int64(2)}}
	root, err := p.PlanUpdateMany(post, map[string]any{"status": "DRAFT"}, map[string]any{"status": "PUBLISHED"})
	require.NoError(t, err)
	res, err := ex.Execute(context.Background(), tx, root)
	require.NoError(t, err)
	assert.Equal(t, Identifier{Kind: IdentifierCount, Count: 2}, res.Identifier)
	assert.Equal(t, []string{"select posts", "update posts"}, tx.log)

	tx = newRecordingTx()
	res, err = ex.Execute(context.Background(), tx, p.PlanReset())
	require.NoError(t, err)
	assert.Equal(t, IdentifierNone, res.Identifier.Kind)
	require.Len(t, tx.log, 10)
	for i, entry := range tx.log {
		if i < 4 {
			assert.True(t, strings.HasPrefix(entry, "unlink _"), entry)
		} else {
			assert.True(t, strings.HasPrefix(entry, "delete "), entry)
		}
	}
}

func TestDeleteReturnsRecord(t *testing.T) {
	p, ex, schema := setup(t)
	post := mustModel(t, schema, "Post")
	tx := newRecordingTx()
	tx.rows["posts"] = []statement.Row{{"id": int64(5), "title": "Hello"}}

	root, err := p.PlanDelete(post, datamodel.IDFinder(post, int64(5)))
	require.NoError(t, err)
	res, err := ex.Execute(context.Background(), tx, root)
	require.NoError(t, err)
	assert.Equal(t, IdentifierRecord, res.Identifier.Kind)
	assert.Equal(t, "Hello", res.Identifier.Record["title"])
	assert.Equal(t, []string{
		"select posts",
		"unlink _PostAuthor",
		"unlink _PostCategories",
		"delete posts_tags",
		"delete posts",
	}, tx.log)
}
