package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/internal/datamodel"
	"querycore/internal/queryerr"
	"querycore/internal/testutil"
)

func blogModels(t *testing.T) (*datamodel.Schema, *datamodel.Model, *datamodel.Model) {
	t.Helper()
	schema := testutil.BlogSchema()
	user, err := schema.Model("User")
	require.NoError(t, err)
	post, err := schema.Model("Post")
	require.NoError(t, err)
	return schema, user, post
}

func TestParseEmptyDocument(t *testing.T) {
	schema, user, _ := blogModels(t)
	f, err := Parse(schema, user, nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestParseScalarOperators(t *testing.T) {
	schema, _, post := blogModels(t)
	title, _ := post.ScalarField("title")
	score, _ := post.ScalarField("score")

	f, err := Parse(schema, post, map[string]any{
		"title": "Hello",
		"score": map[string]any{"gt": 3, "in": []int{4, 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, And{Filters: []Filter{
		And{Filters: []Filter{
			Scalar{Field: score, Op: GreaterThan, Value: 3},
			Scalar{Field: score, Op: In, Values: []any{4, 5}},
		}},
		Scalar{Field: title, Op: Equals, Value: "Hello"},
	}}, f)
}

func TestParseIsNull(t *testing.T) {
	schema, user, _ := blogModels(t)
	name, _ := user.ScalarField("name")

	f, err := Parse(schema, user, map[string]any{"name": map[string]any{"isNull": false}})
	require.NoError(t, err)
	assert.Equal(t, Scalar{Field: name, Op: NotEquals}, f)
}

func TestParseCombinators(t *testing.T) {
	schema, _, post := blogModels(t)
	title, _ := post.ScalarField("title")
	tags, _ := post.ScalarField("tags")

	f, err := Parse(schema, post, map[string]any{
		"OR": []any{
			map[string]any{"title": map[string]any{"startsWith": "Go"}},
			map[string]any{"tags": map[string]any{"hasSome": []string{"db", "sql"}}},
		},
		"NOT": map[string]any{"tags": map[string]any{"has": "draft"}},
	})
	require.NoError(t, err)
	assert.Equal(t, And{Filters: []Filter{
		Not{Filters: []Filter{ScalarList{Field: tags, Op: ListContains, Value: "draft"}}},
		Or{Filters: []Filter{
			Scalar{Field: title, Op: StartsWith, Value: "Go"},
			ScalarList{Field: tags, Op: ContainsSome, Values: []any{"db", "sql"}},
		}},
	}}, f)
}

func TestParseRelations(t *testing.T) {
	schema, user, post := blogModels(t)
	posts, _ := user.RelationField("posts")
	profile, _ := user.RelationField("profile")
	title, _ := post.ScalarField("title")

	f, err := Parse(schema, user, map[string]any{
		"posts":   map[string]any{"every": map[string]any{"title": "x"}, "none": nil},
		"profile": map[string]any{"isNull": false},
	})
	require.NoError(t, err)
	assert.Equal(t, And{Filters: []Filter{
		And{Filters: []Filter{
			Relation{Field: posts, Condition: Every, Nested: Scalar{Field: title, Op: Equals, Value: "x"}},
			Relation{Field: posts, Condition: None, Nested: And{Filters: []Filter{}}},
		}},
		Not{Filters: []Filter{OneRelationIsNull{Field: profile}}},
	}}, f)
}

func TestParseErrors(t *testing.T) {
	schema, user, post := blogModels(t)
	tests := []struct {
		name  string
		model *datamodel.Model
		doc   map[string]any
		msg   string
	}{
		{name: "unknown field", model: user, doc: map[string]any{"age": 3}, msg: "unknown field age on model User"},
		{name: "unknown operator", model: user, doc: map[string]any{"name": map[string]any{"like": "a"}}, msg: "unknown filter operator like on name"},
		{name: "in needs array", model: post, doc: map[string]any{"score": map[string]any{"in": 3}}, msg: "in on score: expected an array"},
		{name: "list field needs object", model: post, doc: map[string]any{"tags": "a"}, msg: "must be an object"},
		{name: "every on to-one", model: user, doc: map[string]any{"profile": map[string]any{"every": map[string]any{}}}, msg: "every is only valid on list relation profile"},
		{name: "isNull on list", model: user, doc: map[string]any{"posts": map[string]any{"isNull": true}}, msg: "isNull is only valid on to-one relation posts"},
		{name: "combinator items", model: user, doc: map[string]any{"AND": []any{"x"}}, msg: "AND array items must be objects"},
		{name: "nested error keeps path", model: user, doc: map[string]any{"posts": map[string]any{"some": map[string]any{"nope": 1}}}, msg: "posts.some: unknown field nope on model Post"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(schema, tt.model, tt.doc)
			require.Error(t, err)
			assert.True(t, queryerr.Is(err, queryerr.KindValidation))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]OrderDirection{"": Ascending, "asc": Ascending, " Desc ": Descending} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
