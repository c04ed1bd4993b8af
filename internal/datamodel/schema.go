package datamodel

import (
	"fmt"
	"sort"

	"querycore/internal/naming"
)

// Schema is the arena holding every model and relation of a data model.
type Schema struct {
	models    map[string]*Model
	order     []string
	relations map[string]*Relation
	relOrder  []string
}

// NewSchema validates and indexes models and relations. Models without a
// DBNameOverride get a table name from namer (naming.Default() when nil).
func NewSchema(models []*Model, relations []*Relation, namer *naming.Namer) (*Schema, error) {
	if namer == nil {
		namer = naming.Default()
	}
	s := &Schema{
		models:    make(map[string]*Model, len(models)),
		relations: make(map[string]*Relation, len(relations)),
	}
	for _, m := range models {
		if m == nil || m.Name == "" {
			return nil, fmt.Errorf("model name must not be empty")
		}
		if _, dup := s.models[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model %s", m.Name)
		}
		if m.id == nil {
			return nil, fmt.Errorf("model %s must declare exactly one id field", m.Name)
		}
		ids := 0
		for _, f := range m.scalars {
			if f.IsID {
				ids++
				if f.IsList {
					return nil, fmt.Errorf("id field %s.%s cannot be a list", m.Name, f.Name)
				}
			}
		}
		if ids != 1 {
			return nil, fmt.Errorf("model %s must declare exactly one id field, found %d", m.Name, ids)
		}
		if len(m.byName) != len(m.fields) {
			return nil, fmt.Errorf("model %s declares duplicate field names", m.Name)
		}
		m.tableName = namer.TableName(m.Name)
		s.models[m.Name] = m
		s.order = append(s.order, m.Name)
	}
	for _, r := range relations {
		if r == nil || r.Name == "" {
			return nil, fmt.Errorf("relation name must not be empty")
		}
		if _, dup := s.relations[r.Name]; dup {
			return nil, fmt.Errorf("duplicate relation %s", r.Name)
		}
		s.relations[r.Name] = r
		s.relOrder = append(s.relOrder, r.Name)
	}
	for _, r := range relations {
		if err := s.validateRelation(r); err != nil {
			return nil, err
		}
	}
	for _, m := range models {
		for _, rf := range m.relations {
			if _, ok := s.relations[rf.Relation]; !ok {
				return nil, fmt.Errorf("field %s.%s references unknown relation %s", m.Name, rf.Name, rf.Relation)
			}
		}
	}
	return s, nil
}

func (s *Schema) validateRelation(r *Relation) error {
	for _, side := range []RelationSide{SideA, SideB} {
		model, ok := s.models[r.ModelFor(side)]
		if !ok {
			return fmt.Errorf("relation %s references unknown model %s", r.Name, r.ModelFor(side))
		}
		rf, err := model.RelationField(r.FieldFor(side))
		if err != nil {
			return fmt.Errorf("relation %s: %w", r.Name, err)
		}
		if rf.Relation != r.Name {
			return fmt.Errorf("field %s.%s belongs to relation %s, not %s", model.Name, rf.Name, rf.Relation, r.Name)
		}
		if rf.Side != side {
			return fmt.Errorf("field %s.%s must be on side %s of relation %s", model.Name, rf.Name, side, r.Name)
		}
		if rf.IsList && rf.IsRequired {
			return fmt.Errorf("list relation field %s.%s cannot be required", model.Name, rf.Name)
		}
	}
	if r.ModelA == r.ModelB && r.FieldA == r.FieldB {
		return fmt.Errorf("relation %s must pair two distinct fields", r.Name)
	}
	return nil
}

// Model returns the model with the given name.
func (s *Schema) Model(name string) (*Model, error) {
	m, ok := s.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %s", name)
	}
	return m, nil
}

// Models returns all models in declaration order.
func (s *Schema) Models() []*Model {
	out := make([]*Model, len(s.order))
	for i, name := range s.order {
		out[i] = s.models[name]
	}
	return out
}

// Relation returns the relation with the given name.
func (s *Schema) Relation(name string) (*Relation, error) {
	r, ok := s.relations[name]
	if !ok {
		return nil, fmt.Errorf("unknown relation %s", name)
	}
	return r, nil
}

// Relations returns all relations sorted by name.
func (s *Schema) Relations() []*Relation {
	names := append([]string(nil), s.relOrder...)
	sort.Strings(names)
	out := make([]*Relation, len(names))
	for i, name := range names {
		out[i] = s.relations[name]
	}
	return out
}

// RelationOf resolves the Relation a field belongs to.
func (s *Schema) RelationOf(rf *RelationField) (*Relation, error) {
	return s.Relation(rf.Relation)
}

// OwnerOf resolves the model owning a field.
func (s *Schema) OwnerOf(f Field) (*Model, error) {
	return s.Model(f.OwnerModel())
}

// RelatedModel resolves the model on the other side of rf.
func (s *Schema) RelatedModel(rf *RelationField) (*Model, error) {
	r, err := s.RelationOf(rf)
	if err != nil {
		return nil, err
	}
	return s.Model(r.ModelFor(rf.Side.Opposite()))
}

// Opposite resolves the field on the other side of rf. It never returns rf itself.
func (s *Schema) Opposite(rf *RelationField) (*RelationField, error) {
	r, err := s.RelationOf(rf)
	if err != nil {
		return nil, err
	}
	side := rf.Side.Opposite()
	model, err := s.Model(r.ModelFor(side))
	if err != nil {
		return nil, err
	}
	opposite, err := model.RelationField(r.FieldFor(side))
	if err != nil {
		return nil, err
	}
	if opposite == rf {
		return nil, fmt.Errorf("relation %s resolves %s.%s to itself", r.Name, rf.Model, rf.Name)
	}
	return opposite, nil
}

// LinkColumns returns the link table and the columns holding the owner's ids
// and the related model's ids for rf.
func (s *Schema) LinkColumns(rf *RelationField) (table, ownColumn, otherColumn string, err error) {
	r, err := s.RelationOf(rf)
	if err != nil {
		return "", "", "", err
	}
	return r.TableName(), r.Column(rf.Side), r.Column(rf.Side.Opposite()), nil
}
