// Package filter defines the declarative predicate tree evaluated against a model
// and the read arguments (ordering, skip, page size, cursors) that accompany it.
package filter

import (
	"querycore/internal/datamodel"
)

// Filter is a node of the predicate tree. The concrete node types are And, Or,
// Not, Scalar, ScalarList, Relation, OneRelationIsNull and Bool.
type Filter interface {
	filterNode()
}

// And matches when every child matches. An empty And matches everything.
type And struct {
	Filters []Filter
}

// Or matches when any child matches. An empty Or matches nothing.
type Or struct {
	Filters []Filter
}

// Not matches when no child matches. An empty Not matches everything.
type Not struct {
	Filters []Filter
}

// ScalarOp is a comparison applied to a scalar column.
type ScalarOp string

const (
	Equals         ScalarOp = "equals"
	NotEquals      ScalarOp = "notEquals"
	Contains       ScalarOp = "contains"
	NotContains    ScalarOp = "notContains"
	StartsWith     ScalarOp = "startsWith"
	NotStartsWith  ScalarOp = "notStartsWith"
	EndsWith       ScalarOp = "endsWith"
	NotEndsWith    ScalarOp = "notEndsWith"
	LessThan       ScalarOp = "lessThan"
	LessOrEqual    ScalarOp = "lessOrEqual"
	GreaterThan    ScalarOp = "greaterThan"
	GreaterOrEqual ScalarOp = "greaterOrEqual"
	In             ScalarOp = "in"
	NotIn          ScalarOp = "notIn"
)

// IsListOp reports whether the operator takes Values instead of Value.
func (op ScalarOp) IsListOp() bool {
	return op == In || op == NotIn
}

// Scalar compares one scalar field. In and NotIn read Values; all other operators read Value.
type Scalar struct {
	Field  *datamodel.ScalarField
	Op     ScalarOp
	Value  any
	Values []any
}

// ListOp is a condition over a scalar list field.
type ListOp string

const (
	ListContains  ListOp = "contains"
	ContainsEvery ListOp = "containsEvery"
	ContainsSome  ListOp = "containsSome"
)

// ScalarList tests the values stored for a list field. ListContains reads Value;
// ContainsEvery and ContainsSome read Values.
type ScalarList struct {
	Field  *datamodel.ScalarField
	Op     ListOp
	Value  any
	Values []any
}

// RelationCondition quantifies a nested filter over the related records.
type RelationCondition string

const (
	Every      RelationCondition = "every"
	AtLeastOne RelationCondition = "some"
	None       RelationCondition = "none"
	ToOne      RelationCondition = "is"
)

// Relation applies Nested to the records related through Field. Nested is
// evaluated against the related model; a nil Nested matches every related record.
type Relation struct {
	Field     *datamodel.RelationField
	Nested    Filter
	Condition RelationCondition
}

// OneRelationIsNull matches records that have no related record through a to-one field.
type OneRelationIsNull struct {
	Field *datamodel.RelationField
}

// Bool is a constant leaf.
type Bool struct {
	Value bool
}

func (And) filterNode()               {}
func (Or) filterNode()                {}
func (Not) filterNode()               {}
func (Scalar) filterNode()            {}
func (ScalarList) filterNode()        {}
func (Relation) filterNode()          {}
func (OneRelationIsNull) filterNode() {}
func (Bool) filterNode()              {}

// Eq is shorthand for an Equals comparison.
func Eq(field *datamodel.ScalarField, value any) Scalar {
	return Scalar{Field: field, Op: Equals, Value: value}
}

// AllOf wraps filters in an And, dropping nil entries.
func AllOf(filters ...Filter) Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return And{Filters: out}
}
