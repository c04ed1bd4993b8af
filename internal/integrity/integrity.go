// Package integrity decides, from the cardinality of a relation on both sides,
// whether a nested link write is legal, which existence check guards it and
// which prior links must be removed before the new link is written.
//
// "Parent" is the record whose relation field the write goes through; "child"
// is the record on the opposite side. For a parent field pf and its opposite cf:
//
//   - both sides required and to-one is structurally unsatisfiable and rejected;
//   - when cf is to-one and pf is required, stealing a child from another parent
//     would leave that parent dangling, so the write checks the child has no
//     other parent (connect only: a freshly created child has none);
//   - when pf is to-one and cf is required, replacing the parent's current child
//     would leave that child dangling, so the write checks the parent has no
//     other child;
//   - when pf is to-one, the parent's previous link is removed;
//   - when cf is to-one, the child's previous link is removed (connect only).
//
// When the parent was created earlier in the same write, it cannot hold any
// link yet: parent-side checks and removals are skipped, and nested creates
// need nothing at all.
package integrity

import (
	"querycore/internal/condition"
	"querycore/internal/datamodel"
	"querycore/internal/queryerr"
	"querycore/internal/statement"
)

// Mode distinguishes writes under an existing parent from writes under a parent
// created earlier in the same root write.
type Mode int

const (
	Normal Mode = iota
	ParentJustCreated
)

func (m Mode) String() string {
	if m == ParentJustCreated {
		return "parent_just_created"
	}
	return "normal"
}

// Operation is the kind of link write being decided.
type Operation string

const (
	Connect Operation = "connect"
	Create  Operation = "create"
)

// Cardinality is the (list, required) pair of one relation field.
type Cardinality struct {
	List     bool
	Required bool
}

func cardinalityOf(f *datamodel.RelationField) Cardinality {
	return Cardinality{List: f.IsList, Required: f.IsRequired}
}

// Rule is the pure outcome of the decision table for one cardinality cell.
type Rule struct {
	Illegal          bool
	CheckOldParent   bool
	CheckOldChild    bool
	RemoveParentLink bool
	RemoveChildLink  bool
}

// None reports whether the rule requires no statement at all.
func (r Rule) None() bool {
	return !r.Illegal && !r.CheckOldParent && !r.CheckOldChild && !r.RemoveParentLink && !r.RemoveChildLink
}

// Table evaluates the decision table for a parent/child cardinality pair.
func Table(parent, child Cardinality, op Operation, mode Mode) Rule {
	if !parent.List && parent.Required && !child.List && child.Required {
		return Rule{Illegal: true}
	}
	if mode == ParentJustCreated && op == Create {
		return Rule{}
	}
	r := Rule{
		CheckOldParent:   op == Connect && !child.List && parent.Required,
		CheckOldChild:    !parent.List && child.Required,
		RemoveParentLink: !parent.List,
		RemoveChildLink:  op == Connect && !child.List,
	}
	if mode == ParentJustCreated {
		r.CheckOldChild = false
		r.RemoveParentLink = false
	}
	return r
}

// Decision is a Rule bound to a concrete relation, ready to produce statements.
type Decision struct {
	Rule
	Relation    *datamodel.Relation
	ParentField *datamodel.RelationField
	ChildField  *datamodel.RelationField

	linkTable    string
	parentColumn string
	childColumn  string
}

// Decide evaluates the table for a write through parentField. An illegal cell
// fails with a relation violation before any statement is produced.
func Decide(schema *datamodel.Schema, parentField *datamodel.RelationField, op Operation, mode Mode) (Decision, error) {
	relation, err := schema.RelationOf(parentField)
	if err != nil {
		return Decision{}, err
	}
	childField, err := schema.Opposite(parentField)
	if err != nil {
		return Decision{}, err
	}
	rule := Table(cardinalityOf(parentField), cardinalityOf(childField), op, mode)
	if rule.Illegal {
		return Decision{}, queryerr.RelationViolation(relation.Name, parentField.Model, childField.Model)
	}
	return Decision{
		Rule:         rule,
		Relation:     relation,
		ParentField:  parentField,
		ChildField:   childField,
		linkTable:    relation.TableName(),
		parentColumn: relation.Column(parentField.Side),
		childColumn:  relation.Column(childField.Side),
	}, nil
}

// LinkTable returns the relation's link table and the parent and child columns.
func (d Decision) LinkTable() (table, parentColumn, childColumn string) {
	return d.linkTable, d.parentColumn, d.childColumn
}

// RequiredChecks returns the existence checks guarding the write. Each check
// fails the write when its query returns a row. childID is nil for creates.
func (d Decision) RequiredChecks(parentID, childID any) []statement.Check {
	var checks []statement.Check
	if d.CheckOldParent && childID != nil {
		checks = append(checks, d.check(condition.AndOf(
			statement.IDEquals(d.linkTable, d.childColumn, childID),
			condition.Compare{Column: condition.Col(d.linkTable, d.parentColumn), Op: condition.OpNotEq, Value: parentID},
		)))
	}
	if d.CheckOldChild {
		where := statement.IDEquals(d.linkTable, d.parentColumn, parentID)
		if childID != nil {
			where = condition.AndOf(where, condition.Compare{
				Column: condition.Col(d.linkTable, d.childColumn), Op: condition.OpNotEq, Value: childID,
			})
		}
		checks = append(checks, d.check(where))
	}
	return checks
}

func (d Decision) check(where condition.Tree) statement.Check {
	limit := 1
	return statement.Check{
		Query: statement.Select{
			From:    condition.Table{Name: d.linkTable},
			Columns: []string{d.parentColumn, d.childColumn},
			Where:   where,
			Limit:   &limit,
		},
		Relation: d.Relation.Name,
		ModelA:   d.ParentField.Model,
		ModelB:   d.ChildField.Model,
	}
}

// ParentRemoval returns the unlink of the parent's previous link, or nil.
func (d Decision) ParentRemoval(parentID any) *statement.DeleteLinks {
	if !d.RemoveParentLink {
		return nil
	}
	return &statement.DeleteLinks{
		Table: d.linkTable,
		Where: statement.IDEquals(d.linkTable, d.parentColumn, parentID),
	}
}

// ChildRemoval returns the unlink of the child's previous link, or nil.
func (d Decision) ChildRemoval(childID any) *statement.DeleteLinks {
	if !d.RemoveChildLink {
		return nil
	}
	return &statement.DeleteLinks{
		Table: d.linkTable,
		Where: statement.IDEquals(d.linkTable, d.childColumn, childID),
	}
}

// Link returns the insert of the parent/child link row.
func (d Decision) Link(parentID, childID any) statement.InsertLink {
	return statement.InsertLink{
		Table:        d.linkTable,
		ParentColumn: d.parentColumn,
		ChildColumn:  d.childColumn,
		ParentID:     parentID,
		ChildID:      childID,
	}
}

// Unlink returns the delete of exactly the parent/child link row.
func (d Decision) Unlink(parentID, childID any) statement.DeleteLinks {
	return statement.DeleteLinks{
		Table: d.linkTable,
		Where: condition.AndOf(
			statement.IDEquals(d.linkTable, d.parentColumn, parentID),
			statement.IDEquals(d.linkTable, d.childColumn, childID),
		),
	}
}

// CheckDisconnect rejects disconnecting through parentField when either side
// of the relation is required.
func CheckDisconnect(schema *datamodel.Schema, parentField *datamodel.RelationField) error {
	relation, err := schema.RelationOf(parentField)
	if err != nil {
		return err
	}
	childField, err := schema.Opposite(parentField)
	if err != nil {
		return err
	}
	if parentField.IsRequired || childField.IsRequired {
		return queryerr.RelationViolation(relation.Name, parentField.Model, childField.Model)
	}
	return nil
}

// CheckNestedDelete rejects deleting the child reached through a required
// to-one parentField, which would leave the parent dangling.
func CheckNestedDelete(schema *datamodel.Schema, parentField *datamodel.RelationField) error {
	relation, err := schema.RelationOf(parentField)
	if err != nil {
		return err
	}
	if parentField.IsRequired && !parentField.IsList {
		return queryerr.RelationViolation(relation.Name, parentField.Model, relation.ModelFor(parentField.Side.Opposite()))
	}
	return nil
}

// DeleteChecks returns, for records of model about to be deleted, one check per
// relation whose opposite side requires a link to them. Relations configured to
// cascade from model are skipped: their dependants are deleted too.
func DeleteChecks(schema *datamodel.Schema, model *datamodel.Model, ids []any) ([]statement.Check, error) {
	var checks []statement.Check
	for _, rf := range model.RelationFields() {
		relation, err := schema.RelationOf(rf)
		if err != nil {
			return nil, err
		}
		opposite, err := schema.Opposite(rf)
		if err != nil {
			return nil, err
		}
		if !opposite.IsRequired || opposite.IsList {
			continue
		}
		if relation.OnDeleteFor(rf.Side) == datamodel.OnDeleteCascade {
			continue
		}
		table := relation.TableName()
		own := relation.Column(rf.Side)
		other := relation.Column(opposite.Side)
		limit := 1
		checks = append(checks, statement.Check{
			Query: statement.Select{
				From:    condition.Table{Name: table},
				Columns: []string{own, other},
				Where:   statement.IDIn(table, own, ids),
				Limit:   &limit,
			},
			Relation: relation.Name,
			ModelA:   model.Name,
			ModelB:   opposite.Model,
		})
	}
	return checks, nil
}
