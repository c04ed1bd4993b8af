package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/internal/queryerr"
)

func twoModelSchema(t *testing.T) *Schema {
	t.Helper()
	author := NewModel("Author",
		&ScalarField{Name: "id", Type: TypeInt, IsID: true, IsRequired: true},
		&ScalarField{Name: "email", Type: TypeString, IsUnique: true},
		&ScalarField{Name: "nicknames", Type: TypeString, IsList: true},
		&RelationField{Name: "books", Relation: "AuthorBooks", Side: SideA, IsList: true},
	)
	book := NewModel("Book",
		&ScalarField{Name: "id", Type: TypeInt, IsID: true, IsRequired: true},
		&ScalarField{Name: "title", Type: TypeString, DBNameOverride: "book_title"},
		&RelationField{Name: "author", Relation: "AuthorBooks", Side: SideB, IsRequired: true},
	)
	s, err := NewSchema([]*Model{author, book}, []*Relation{
		{Name: "AuthorBooks", ModelA: "Author", FieldA: "books", ModelB: "Book", FieldB: "author", OnDeleteA: OnDeleteCascade},
	}, nil)
	require.NoError(t, err)
	return s
}

func TestSchemaResolvesRelations(t *testing.T) {
	s := twoModelSchema(t)

	author, err := s.Model("Author")
	require.NoError(t, err)
	assert.Equal(t, "authors", author.DBName())

	books, err := author.RelationField("books")
	require.NoError(t, err)

	related, err := s.RelatedModel(books)
	require.NoError(t, err)
	assert.Equal(t, "Book", related.Name)

	opposite, err := s.Opposite(books)
	require.NoError(t, err)
	assert.Equal(t, "author", opposite.Name)
	assert.Equal(t, SideB, opposite.Side)
	assert.NotSame(t, books, opposite)

	table, own, other, err := s.LinkColumns(opposite)
	require.NoError(t, err)
	assert.Equal(t, "_AuthorBooks", table)
	assert.Equal(t, "B", own)
	assert.Equal(t, "A", other)

	rel, err := s.RelationOf(books)
	require.NoError(t, err)
	assert.Equal(t, OnDeleteCascade, rel.OnDeleteFor(SideA))
	assert.Equal(t, OnDeleteSetNull, rel.OnDeleteFor(SideB))
}

func TestModelFieldAccessors(t *testing.T) {
	s := twoModelSchema(t)
	author, err := s.Model("Author")
	require.NoError(t, err)

	assert.Equal(t, "id", author.IDField().Name)
	assert.Len(t, author.ScalarNonListFields(), 2)
	require.Len(t, author.ScalarListFields(), 1)
	assert.Equal(t, "authors_nicknames", author.ListTable(author.ScalarListFields()[0]))

	book, err := s.Model("Book")
	require.NoError(t, err)
	title, err := book.ScalarField("title")
	require.NoError(t, err)
	assert.Equal(t, "book_title", title.DBName())

	_, err = book.ScalarField("author")
	assert.Error(t, err)
	_, err = book.RelationField("missing")
	assert.Error(t, err)
}

func TestNewSchemaRejectsInvalidModels(t *testing.T) {
	tests := []struct {
		name      string
		models    func() []*Model
		relations []*Relation
		wantErr   string
	}{
		{
			name: "missing id",
			models: func() []*Model {
				return []*Model{NewModel("A", &ScalarField{Name: "name"})}
			},
			wantErr: "exactly one id field",
		},
		{
			name: "two ids",
			models: func() []*Model {
				return []*Model{NewModel("A",
					&ScalarField{Name: "id", IsID: true},
					&ScalarField{Name: "other", IsID: true},
				)}
			},
			wantErr: "found 2",
		},
		{
			name: "duplicate model",
			models: func() []*Model {
				return []*Model{
					NewModel("A", &ScalarField{Name: "id", IsID: true}),
					NewModel("A", &ScalarField{Name: "id", IsID: true}),
				}
			},
			wantErr: "duplicate model",
		},
		{
			name: "unknown relation",
			models: func() []*Model {
				return []*Model{NewModel("A",
					&ScalarField{Name: "id", IsID: true},
					&RelationField{Name: "b", Relation: "Nope", Side: SideA},
				)}
			},
			wantErr: "unknown relation",
		},
		{
			name: "required list relation",
			models: func() []*Model {
				return []*Model{
					NewModel("A", &ScalarField{Name: "id", IsID: true}, &RelationField{Name: "bs", Relation: "AB", Side: SideA, IsList: true, IsRequired: true}),
					NewModel("B", &ScalarField{Name: "id", IsID: true}, &RelationField{Name: "a", Relation: "AB", Side: SideB}),
				}
			},
			relations: []*Relation{{Name: "AB", ModelA: "A", FieldA: "bs", ModelB: "B", FieldB: "a"}},
			wantErr:   "cannot be required",
		},
		{
			name: "wrong side",
			models: func() []*Model {
				return []*Model{
					NewModel("A", &ScalarField{Name: "id", IsID: true}, &RelationField{Name: "b", Relation: "AB", Side: SideB}),
					NewModel("B", &ScalarField{Name: "id", IsID: true}, &RelationField{Name: "a", Relation: "AB", Side: SideB}),
				}
			},
			relations: []*Relation{{Name: "AB", ModelA: "A", FieldA: "b", ModelB: "B", FieldB: "a"}},
			wantErr:   "must be on side A",
		},
		{
			name: "self relation on one field",
			models: func() []*Model {
				return []*Model{
					NewModel("A", &ScalarField{Name: "id", IsID: true}, &RelationField{Name: "me", Relation: "Self", Side: SideA}),
				}
			},
			relations: []*Relation{{Name: "Self", ModelA: "A", FieldA: "me", ModelB: "A", FieldB: "me"}},
			wantErr:   "must be on side B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.models(), tt.relations, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSelfRelationOppositeIsDistinct(t *testing.T) {
	user := NewModel("User",
		&ScalarField{Name: "id", IsID: true},
		&RelationField{Name: "followers", Relation: "Follows", Side: SideA, IsList: true},
		&RelationField{Name: "following", Relation: "Follows", Side: SideB, IsList: true},
	)
	s, err := NewSchema([]*Model{user}, []*Relation{
		{Name: "Follows", ModelA: "User", FieldA: "followers", ModelB: "User", FieldB: "following"},
	}, nil)
	require.NoError(t, err)

	followers, err := user.RelationField("followers")
	require.NoError(t, err)
	opposite, err := s.Opposite(followers)
	require.NoError(t, err)
	assert.Equal(t, "following", opposite.Name)
}

func TestRecordFinder(t *testing.T) {
	s := twoModelSchema(t)
	author, err := s.Model("Author")
	require.NoError(t, err)

	finder, err := NewRecordFinder(author, "email", "a@example.com")
	require.NoError(t, err)
	assert.False(t, finder.IsID())
	assert.Equal(t, "a@example.com", finder.Value)

	_, err = NewRecordFinder(author, "nicknames", "x")
	assert.True(t, queryerr.Is(err, queryerr.KindValidation))

	book, err := s.Model("Book")
	require.NoError(t, err)
	_, err = NewRecordFinder(book, "title", "Go")
	assert.True(t, queryerr.Is(err, queryerr.KindValidation))

	finder, err = FinderFromDocument(book, map[string]any{"id": 3})
	require.NoError(t, err)
	assert.True(t, finder.IsID())

	_, err = FinderFromDocument(book, map[string]any{"id": 3, "title": "x"})
	assert.True(t, queryerr.Is(err, queryerr.KindValidation))
}
