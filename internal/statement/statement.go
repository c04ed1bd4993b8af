// Package statement defines the primitive statements the core hands to a
// renderer: selects, inserts, updates, deletes and link-table writes. Statements
// reference tables and columns by storage name and carry condition trees, never
// SQL text.
package statement

import (
	"fmt"

	"querycore/internal/condition"
)

// Statement is one primitive write or read.
type Statement interface {
	// Describe returns a short human-readable label used in logs and plans.
	Describe() string
}

// Order is one ORDER BY term.
type Order struct {
	Column     condition.Column
	Descending bool
}

// Select reads Columns from From. A nil Limit means unbounded.
type Select struct {
	From    condition.Table
	Columns []string
	Where   condition.Tree
	OrderBy []Order
	Offset  int
	Limit   *int
}

// Insert writes one row per entry of Rows. Returning names the id column whose
// generated value the caller needs back; empty means no generated value is read.
type Insert struct {
	Table     string
	Columns   []string
	Rows      [][]any
	Returning string
}

// Assignment is one SET term.
type Assignment struct {
	Column string
	Value  any
}

// Update sets columns on every row matching Where.
type Update struct {
	Table string
	Set   []Assignment
	Where condition.Tree
}

// Delete removes every row of Table matching Where.
type Delete struct {
	Table string
	Where condition.Tree
}

// InsertLink writes one relation link row.
type InsertLink struct {
	Table        string
	ParentColumn string
	ChildColumn  string
	ParentID     any
	ChildID      any
}

// DeleteLinks removes relation link rows matching Where.
type DeleteLinks struct {
	Table string
	Where condition.Tree
}

func (s Select) Describe() string {
	return fmt.Sprintf("select %s", s.From.Name)
}

func (s Insert) Describe() string {
	return fmt.Sprintf("insert %s (%d rows)", s.Table, len(s.Rows))
}

func (s Update) Describe() string {
	return fmt.Sprintf("update %s", s.Table)
}

func (s Delete) Describe() string {
	return fmt.Sprintf("delete %s", s.Table)
}

func (s InsertLink) Describe() string {
	return fmt.Sprintf("link %s (%v, %v)", s.Table, s.ParentID, s.ChildID)
}

func (s DeleteLinks) Describe() string {
	return fmt.Sprintf("unlink %s", s.Table)
}

// Check is an existence query guarding a relation write: if Query returns any
// row, the write must fail with a relation violation for Relation.
type Check struct {
	Query    Select
	Relation string
	ModelA   string
	ModelB   string
}

func (c Check) Describe() string {
	return fmt.Sprintf("check %s", c.Relation)
}

// Row is one result row keyed by column name.
type Row map[string]any

// ExecResult reports the effect of a write.
type ExecResult struct {
	RowsAffected int64
	// InsertID is the generated id of the last inserted row when the insert asked for it.
	InsertID any
}

// IDEquals builds the `alias.column = id` predicate.
func IDEquals(alias, column string, id any) condition.Tree {
	return condition.Compare{Column: condition.Col(alias, column), Op: condition.OpEq, Value: id}
}

// IDIn builds the `alias.column IN (ids)` predicate, false for no ids.
func IDIn(alias, column string, ids []any) condition.Tree {
	if len(ids) == 0 {
		return condition.False
	}
	if len(ids) == 1 {
		return IDEquals(alias, column, ids[0])
	}
	return condition.In{Column: condition.Col(alias, column), Values: ids}
}
