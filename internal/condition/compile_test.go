package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/queryerr"
	"querycore/internal/testutil"
)

func blogModel(t *testing.T, schema *datamodel.Schema, name string) *datamodel.Model {
	t.Helper()
	m, err := schema.Model(name)
	require.NoError(t, err)
	return m
}

func scalarField(t *testing.T, m *datamodel.Model, name string) *datamodel.ScalarField {
	t.Helper()
	f, err := m.ScalarField(name)
	require.NoError(t, err)
	return f
}

func TestConstantFolding(t *testing.T) {
	c := Compare{Column: Col("t", "a"), Op: OpEq, Value: 1}

	assert.Equal(t, True, AndOf())
	assert.Equal(t, c, AndOf(True, c))
	assert.Equal(t, False, AndOf(c, False))
	assert.Equal(t, False, OrOf())
	assert.Equal(t, True, OrOf(c, True))
	assert.Equal(t, c, OrOf(False, c, nil))
	assert.Equal(t, False, NotOf(True))
	assert.Equal(t, Tree(c), NotOf(NotOf(c)))
}

func TestCompileScalarOperators(t *testing.T) {
	schema := testutil.BlogSchema()
	post := blogModel(t, schema, "Post")
	title := scalarField(t, post, "title")
	col := Col("posts", "title")

	tests := []struct {
		name string
		f    filter.Filter
		want Tree
	}{
		{name: "equals null", f: filter.Scalar{Field: title, Op: filter.Equals}, want: IsNull{Column: col}},
		{name: "not equals null", f: filter.Scalar{Field: title, Op: filter.NotEquals}, want: IsNull{Column: col, Negated: true}},
		{name: "in empty", f: filter.Scalar{Field: title, Op: filter.In}, want: False},
		{name: "not in empty", f: filter.Scalar{Field: title, Op: filter.NotIn}, want: True},
		{name: "contains", f: filter.Scalar{Field: title, Op: filter.Contains, Value: "go"}, want: Compare{Column: col, Op: OpLike, Value: "%go%"}},
		{name: "not starts with", f: filter.Scalar{Field: title, Op: filter.NotStartsWith, Value: "go"}, want: Compare{Column: col, Op: OpNotLike, Value: "go%"}},
		{name: "ends with", f: filter.Scalar{Field: title, Op: filter.EndsWith, Value: "go"}, want: Compare{Column: col, Op: OpLike, Value: "%go"}},
		{name: "wildcards are literal", f: filter.Scalar{Field: title, Op: filter.Contains, Value: "50%_off!"}, want: Compare{Column: col, Op: OpLike, Value: "%50!%!_off!!%"}},
		{
			name: "not of two",
			f: filter.Not{Filters: []filter.Filter{
				filter.Eq(title, "a"),
				filter.Scalar{Field: title, Op: filter.GreaterThan, Value: "m"},
			}},
			want: And{Children: []Tree{
				Not{Child: Compare{Column: col, Op: OpEq, Value: "a"}},
				Not{Child: Compare{Column: col, Op: OpGt, Value: "m"}},
			}},
		},
		{name: "empty or", f: filter.Or{}, want: False},
		{name: "empty and", f: filter.And{}, want: True},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(schema, post, tt.f, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileRejectsForeignField(t *testing.T) {
	schema := testutil.BlogSchema()
	post := blogModel(t, schema, "Post")
	user := blogModel(t, schema, "User")

	_, err := Compile(schema, post, filter.Eq(scalarField(t, user, "email"), "x"), "")
	assert.True(t, queryerr.Is(err, queryerr.KindValidation))

	_, err = Compile(schema, post, filter.Scalar{Field: scalarField(t, post, "title"), Op: filter.Contains, Value: 3}, "")
	assert.True(t, queryerr.Is(err, queryerr.KindValidation))
}

func TestCompileScalarListUsesFreshAliases(t *testing.T) {
	schema := testutil.BlogSchema()
	post := blogModel(t, schema, "Post")
	tags := scalarField(t, post, "tags")

	got, err := Compile(schema, post, filter.ScalarList{Field: tags, Op: filter.ContainsEvery, Values: []any{"a", "b"}}, "p")
	require.NoError(t, err)

	and, ok := got.(And)
	require.True(t, ok)
	require.Len(t, and.Children, 2)
	first := and.Children[0].(Exists)
	second := and.Children[1].(Exists)
	assert.Equal(t, Table{Name: "posts_tags", Alias: "__posts_tags_1"}, first.Select.From)
	assert.Equal(t, Table{Name: "posts_tags", Alias: "__posts_tags_2"}, second.Select.From)
	assert.Equal(t, And{Children: []Tree{
		CompareColumns{Left: Col("__posts_tags_1", "nodeId"), Op: OpEq, Right: Col("p", "id")},
		Compare{Column: Col("__posts_tags_1", "value"), Op: OpEq, Value: "a"},
	}}, first.Select.Where)

	got, err = Compile(schema, post, filter.ScalarList{Field: tags, Op: filter.ContainsSome}, "p")
	require.NoError(t, err)
	assert.Equal(t, False, got)
}

func TestCompileRelationQuantifiers(t *testing.T) {
	schema := testutil.BlogSchema()
	user := blogModel(t, schema, "User")
	posts, err := user.RelationField("posts")
	require.NoError(t, err)
	profile, err := user.RelationField("profile")
	require.NoError(t, err)

	t.Run("every with no nested filter is true", func(t *testing.T) {
		got, err := Compile(schema, user, filter.Relation{Field: posts, Condition: filter.Every, Nested: filter.And{}}, "")
		require.NoError(t, err)
		assert.Equal(t, True, got)
	})

	t.Run("every negates the nested filter", func(t *testing.T) {
		post := blogModel(t, schema, "Post")
		score := scalarField(t, post, "score")
		got, err := Compile(schema, user, filter.Relation{
			Field:     posts,
			Condition: filter.Every,
			Nested:    filter.Scalar{Field: score, Op: filter.GreaterThan, Value: 3},
		}, "")
		require.NoError(t, err)
		exists, ok := got.(Exists)
		require.True(t, ok)
		assert.True(t, exists.Negated)
		assert.Equal(t, Table{Name: "_PostAuthor", Alias: "___PostAuthor_1"}, exists.Select.From)
		require.Len(t, exists.Select.Joins, 1)
		assert.Equal(t, Table{Name: "posts", Alias: "__posts_2"}, exists.Select.Joins[0].Table)
		assert.Equal(t, And{Children: []Tree{
			CompareColumns{Left: Col("___PostAuthor_1", "B"), Op: OpEq, Right: Col("users", "id")},
			Not{Child: Compare{Column: Col("__posts_2", "score"), Op: OpGt, Value: 3}},
		}}, exists.Select.Where)
	})

	t.Run("quantifier must match cardinality", func(t *testing.T) {
		_, err := Compile(schema, user, filter.Relation{Field: profile, Condition: filter.Every}, "")
		assert.True(t, queryerr.Is(err, queryerr.KindValidation))
		_, err = Compile(schema, user, filter.Relation{Field: posts, Condition: filter.ToOne}, "")
		assert.True(t, queryerr.Is(err, queryerr.KindValidation))
		_, err = Compile(schema, user, filter.OneRelationIsNull{Field: posts}, "")
		assert.True(t, queryerr.Is(err, queryerr.KindValidation))
	})

	t.Run("to-one is null", func(t *testing.T) {
		got, err := Compile(schema, user, filter.OneRelationIsNull{Field: profile}, "u")
		require.NoError(t, err)
		assert.Equal(t, Exists{Negated: true, Select: SubSelect{
			From:  Table{Name: "_UserProfile", Alias: "___UserProfile_1"},
			Where: CompareColumns{Left: Col("___UserProfile_1", "A"), Op: OpEq, Right: Col("u", "id")},
		}}, got)
	})
}
