// Package datamodel describes the declarative data model: models, scalar fields,
// relation fields and the relations that pair them. A Schema is an arena keyed by
// model and relation name; fields refer to their owner and relation by key, so
// resolving the other side of a relation is a map lookup that fails with an error
// instead of following a cyclic pointer. A Schema is immutable once built and is
// shared by all concurrent requests.
package datamodel

import (
	"fmt"

	"querycore/internal/naming"
)

// TypeIdentifier is the logical type of a scalar field.
type TypeIdentifier string

const (
	TypeString   TypeIdentifier = "String"
	TypeInt      TypeIdentifier = "Int"
	TypeFloat    TypeIdentifier = "Float"
	TypeBoolean  TypeIdentifier = "Boolean"
	TypeDateTime TypeIdentifier = "DateTime"
	TypeEnum     TypeIdentifier = "Enum"
	TypeJSON     TypeIdentifier = "Json"
	TypeUUID     TypeIdentifier = "UUID"
	TypeID       TypeIdentifier = "ID"
)

// Behaviour marks scalar fields the write planner maintains automatically.
type Behaviour string

const (
	BehaviourNone      Behaviour = ""
	BehaviourCreatedAt Behaviour = "createdAt"
	BehaviourUpdatedAt Behaviour = "updatedAt"
)

// RelationSide tags which end of a Relation a field sits on.
type RelationSide string

const (
	SideA RelationSide = "A"
	SideB RelationSide = "B"
)

// Opposite returns the other side.
func (s RelationSide) Opposite() RelationSide {
	if s == SideA {
		return SideB
	}
	return SideA
}

// OnDelete is the policy applied to related records when a record is deleted.
type OnDelete string

const (
	OnDeleteSetNull OnDelete = "SET_NULL"
	OnDeleteCascade OnDelete = "CASCADE"
)

// Field is either a *ScalarField or a *RelationField.
type Field interface {
	FieldName() string
	OwnerModel() string
	Required() bool
	List() bool
}

// ScalarField is a column-backed field.
type ScalarField struct {
	Name string
	// Model is the key of the owning model. It is set when the model is built.
	Model          string
	DBNameOverride string
	Type           TypeIdentifier
	IsRequired     bool
	IsList         bool
	IsUnique       bool
	// IsHidden fields are written like any other but left out of read results.
	IsHidden bool
	IsID     bool
	// IsAutoGenerated marks id fields whose value is produced by the engine or the planner.
	IsAutoGenerated bool
	Behaviour       Behaviour
	Default         any
	EnumValues      []string
}

func (f *ScalarField) FieldName() string  { return f.Name }
func (f *ScalarField) OwnerModel() string { return f.Model }
func (f *ScalarField) Required() bool     { return f.IsRequired }
func (f *ScalarField) List() bool         { return f.IsList }

// DBName returns the column name.
func (f *ScalarField) DBName() string {
	if f.DBNameOverride != "" {
		return f.DBNameOverride
	}
	return f.Name
}

// IsUniqueOrID reports whether the field identifies at most one record.
func (f *ScalarField) IsUniqueOrID() bool {
	return f.IsID || f.IsUnique
}

// RelationField is one end of a Relation.
type RelationField struct {
	Name string
	// Model is the key of the owning model. It is set when the model is built.
	Model string
	// Relation is the key of the shared Relation.
	Relation   string
	Side       RelationSide
	IsRequired bool
	IsList     bool
	IsUnique   bool
}

func (f *RelationField) FieldName() string  { return f.Name }
func (f *RelationField) OwnerModel() string { return f.Model }
func (f *RelationField) Required() bool     { return f.IsRequired }
func (f *RelationField) List() bool         { return f.IsList }

// Relation pairs two RelationFields. Link rows live in a table with one id column per side.
type Relation struct {
	Name      string
	ModelA    string
	ModelB    string
	FieldA    string
	FieldB    string
	OnDeleteA OnDelete
	OnDeleteB OnDelete
	// TableOverride replaces the default "_<Name>" link table name.
	TableOverride string
}

// TableName returns the link table.
func (r *Relation) TableName() string {
	if r.TableOverride != "" {
		return r.TableOverride
	}
	return naming.LinkTable(r.Name)
}

// Column returns the link-table column holding ids of the given side.
func (r *Relation) Column(side RelationSide) string {
	if side == SideA {
		return naming.LinkColumnA
	}
	return naming.LinkColumnB
}

// ModelFor returns the model key of the given side.
func (r *Relation) ModelFor(side RelationSide) string {
	if side == SideA {
		return r.ModelA
	}
	return r.ModelB
}

// FieldFor returns the field name of the given side.
func (r *Relation) FieldFor(side RelationSide) string {
	if side == SideA {
		return r.FieldA
	}
	return r.FieldB
}

// OnDeleteFor returns the policy applied to the other side's records when a
// record on the given side is deleted.
func (r *Relation) OnDeleteFor(side RelationSide) OnDelete {
	policy := r.OnDeleteA
	if side == SideB {
		policy = r.OnDeleteB
	}
	if policy == "" {
		return OnDeleteSetNull
	}
	return policy
}

// Model is a named entity backed by one table.
type Model struct {
	Name           string
	DBNameOverride string

	tableName string
	fields    []Field
	scalars   []*ScalarField
	relations []*RelationField
	byName    map[string]Field
	id        *ScalarField
}

// NewModel builds a model from its ordered fields and stamps each field with the owner key.
func NewModel(name string, fields ...Field) *Model {
	m := &Model{
		Name:   name,
		byName: make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		switch field := f.(type) {
		case *ScalarField:
			field.Model = name
			m.scalars = append(m.scalars, field)
			if field.IsID && m.id == nil {
				m.id = field
			}
		case *RelationField:
			field.Model = name
			m.relations = append(m.relations, field)
		}
		m.fields = append(m.fields, f)
		m.byName[f.FieldName()] = f
	}
	return m
}

// DBName returns the table name.
func (m *Model) DBName() string {
	if m.DBNameOverride != "" {
		return m.DBNameOverride
	}
	return m.tableName
}

// Fields returns all fields in declaration order.
func (m *Model) Fields() []Field { return m.fields }

// ScalarFields returns scalar fields in declaration order.
func (m *Model) ScalarFields() []*ScalarField { return m.scalars }

// RelationFields returns relation fields in declaration order.
func (m *Model) RelationFields() []*RelationField { return m.relations }

// IDField returns the identifying field.
func (m *Model) IDField() *ScalarField { return m.id }

// Field looks a field up by name.
func (m *Model) Field(name string) (Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// ScalarField looks a scalar field up by name.
func (m *Model) ScalarField(name string) (*ScalarField, error) {
	f, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("model %s has no field %s", m.Name, name)
	}
	sf, ok := f.(*ScalarField)
	if !ok {
		return nil, fmt.Errorf("field %s.%s is not a scalar field", m.Name, name)
	}
	return sf, nil
}

// RelationField looks a relation field up by name.
func (m *Model) RelationField(name string) (*RelationField, error) {
	f, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("model %s has no field %s", m.Name, name)
	}
	rf, ok := f.(*RelationField)
	if !ok {
		return nil, fmt.Errorf("field %s.%s is not a relation field", m.Name, name)
	}
	return rf, nil
}

// ScalarNonListFields returns the column-backed scalar fields.
func (m *Model) ScalarNonListFields() []*ScalarField {
	out := make([]*ScalarField, 0, len(m.scalars))
	for _, f := range m.scalars {
		if !f.IsList {
			out = append(out, f)
		}
	}
	return out
}

// ScalarListFields returns the scalar fields stored in auxiliary list tables.
func (m *Model) ScalarListFields() []*ScalarField {
	var out []*ScalarField
	for _, f := range m.scalars {
		if f.IsList {
			out = append(out, f)
		}
	}
	return out
}

// FieldWithBehaviour returns the first scalar field carrying the behaviour, or nil.
func (m *Model) FieldWithBehaviour(b Behaviour) *ScalarField {
	for _, f := range m.scalars {
		if f.Behaviour == b {
			return f
		}
	}
	return nil
}

// ListTable returns the auxiliary table of a scalar list field of this model.
func (m *Model) ListTable(f *ScalarField) string {
	return naming.ListTable(m.DBName(), f.DBName())
}
