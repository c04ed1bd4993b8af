// Package writeplan turns a nested input document into a tree of write
// operations. Planning validates the whole document and resolves every relation
// decision up front, so a malformed or structurally impossible request fails
// before a single statement is issued.
package writeplan

import (
	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/integrity"
)

// Kind is the root operation.
type Kind string

const (
	KindCreate     Kind = "create"
	KindUpdate     Kind = "update"
	KindUpsert     Kind = "upsert"
	KindDelete     Kind = "delete"
	KindUpdateMany Kind = "updateMany"
	KindDeleteMany Kind = "deleteMany"
	KindReset      Kind = "reset"
)

// RootWrite is one planned root operation. Exactly the node matching Kind is
// set; Reset carries none.
type RootWrite struct {
	Kind  Kind
	Model *datamodel.Model

	Create     *CreateNode
	Update     *UpdateNode
	Upsert     *UpsertNode
	Delete     *DeleteNode
	UpdateMany *UpdateManyNode
	DeleteMany *DeleteManyNode
}

// FieldValue assigns a value to a column-backed scalar field.
type FieldValue struct {
	Field *datamodel.ScalarField
	Value any
}

// ListWrite replaces the stored values of a scalar list field.
type ListWrite struct {
	Field  *datamodel.ScalarField
	Values []any
}

// CreateNode inserts one record and then applies its nested writes.
type CreateNode struct {
	Model  *datamodel.Model
	Args   []FieldValue
	Lists  []ListWrite
	Nested NestedWrites
}

// IDArg returns the explicit id assigned by the planner or the input, if any.
func (n *CreateNode) IDArg() (any, bool) {
	id := n.Model.IDField()
	for _, a := range n.Args {
		if a.Field == id {
			return a.Value, true
		}
	}
	return nil, false
}

// UpdateNode updates one record. Where is nil for a to-one nested update, which
// targets whatever record is currently linked.
type UpdateNode struct {
	Model  *datamodel.Model
	Where  *datamodel.RecordFinder
	Args   []FieldValue
	Lists  []ListWrite
	Nested NestedWrites
}

// Empty reports whether the update changes nothing on the record itself.
func (n *UpdateNode) Empty() bool {
	return len(n.Args) == 0 && len(n.Lists) == 0
}

// UpsertNode updates the record matched by Where, or creates it when absent.
type UpsertNode struct {
	Model  *datamodel.Model
	Where  *datamodel.RecordFinder
	Create *CreateNode
	Update *UpdateNode
}

// DeleteNode deletes one record.
type DeleteNode struct {
	Model *datamodel.Model
	Where *datamodel.RecordFinder
}

// UpdateManyNode updates every record matching Filter.
type UpdateManyNode struct {
	Model  *datamodel.Model
	Filter filter.Filter
	Args   []FieldValue
	Lists  []ListWrite
}

// DeleteManyNode deletes every record matching Filter.
type DeleteManyNode struct {
	Model  *datamodel.Model
	Filter filter.Filter
}

// NestedWrites buckets the child operations of one node by category. The
// executor processes buckets in field order.
type NestedWrites struct {
	Creates     []NestedCreate
	Updates     []NestedUpdate
	Upserts     []NestedUpsert
	Deletes     []NestedDelete
	Connects    []NestedConnect
	Sets        []NestedSet
	Disconnects []NestedDisconnect
	UpdateManys []NestedUpdateMany
	DeleteManys []NestedDeleteMany
}

// Len counts the nested operations.
func (n NestedWrites) Len() int {
	return len(n.Creates) + len(n.Updates) + len(n.Upserts) + len(n.Deletes) + len(n.Connects) +
		len(n.Sets) + len(n.Disconnects) + len(n.UpdateManys) + len(n.DeleteManys)
}

// NestedCreate creates a child and links it to the parent.
type NestedCreate struct {
	Field    *datamodel.RelationField
	Mode     integrity.Mode
	Decision integrity.Decision
	Create   *CreateNode
}

// NestedUpdate updates a linked child.
type NestedUpdate struct {
	Field  *datamodel.RelationField
	Update *UpdateNode
}

// NestedUpsert updates the linked child matched by Where, or creates and links it.
type NestedUpsert struct {
	Field    *datamodel.RelationField
	Mode     integrity.Mode
	Decision integrity.Decision
	Where    *datamodel.RecordFinder
	Create   *CreateNode
	Update   *UpdateNode
}

// NestedDelete deletes a linked child. Where is nil on to-one fields.
type NestedDelete struct {
	Field *datamodel.RelationField
	Where *datamodel.RecordFinder
}

// NestedConnect links an existing record.
type NestedConnect struct {
	Field    *datamodel.RelationField
	Mode     integrity.Mode
	Decision integrity.Decision
	Where    datamodel.RecordFinder
}

// NestedSet replaces every link of a list field with links to Wheres.
type NestedSet struct {
	Field    *datamodel.RelationField
	Decision integrity.Decision
	Wheres   []datamodel.RecordFinder
}

// NestedDisconnect removes a link. Where is nil on to-one fields.
type NestedDisconnect struct {
	Field *datamodel.RelationField
	Where *datamodel.RecordFinder
}

// NestedUpdateMany updates every linked child matching Filter.
type NestedUpdateMany struct {
	Field  *datamodel.RelationField
	Filter filter.Filter
	Args   []FieldValue
	Lists  []ListWrite
}

// NestedDeleteMany deletes every linked child matching Filter.
type NestedDeleteMany struct {
	Field  *datamodel.RelationField
	Filter filter.Filter
}
