// Package condition holds the engine-agnostic boolean expression tree produced
// from filters and cursors, and the compiler that builds it. Renderers turn a Tree
// into dialect-specific SQL; nothing in this package emits SQL text.
package condition

// Tree is a boolean expression node.
type Tree interface {
	conditionNode()
}

// Column references a column, qualified by a table alias when Alias is set.
type Column struct {
	Alias string
	Name  string
}

// Col builds a qualified column reference.
func Col(alias, name string) Column {
	return Column{Alias: alias, Name: name}
}

// Op is a binary comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpNotEq   Op = "<>"
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLike    Op = "LIKE"
	OpNotLike Op = "NOT LIKE"
)

type (
	And struct{ Children []Tree }
	Or  struct{ Children []Tree }
	Not struct{ Child Tree }

	// Bool is a constant true/false leaf.
	Bool struct{ Value bool }

	// Compare is `column op value`.
	Compare struct {
		Column Column
		Op     Op
		Value  any
	}

	// CompareColumns is `left op right`, used for correlation predicates.
	CompareColumns struct {
		Left  Column
		Op    Op
		Right Column
	}

	// In is `column IN (values)`, or NOT IN when Negated. Values is never empty.
	In struct {
		Column  Column
		Values  []any
		Negated bool
	}

	// IsNull is `column IS NULL`, or IS NOT NULL when Negated.
	IsNull struct {
		Column  Column
		Negated bool
	}

	// Exists is `EXISTS (subselect)`, or NOT EXISTS when Negated.
	Exists struct {
		Select  SubSelect
		Negated bool
	}

	// CompareSelect is `column op (subselect)` where the subselect yields one value.
	CompareSelect struct {
		Column Column
		Op     Op
		Select SubSelect
	}
)

func (And) conditionNode()            {}
func (Or) conditionNode()             {}
func (Not) conditionNode()            {}
func (Bool) conditionNode()           {}
func (Compare) conditionNode()        {}
func (CompareColumns) conditionNode() {}
func (In) conditionNode()             {}
func (IsNull) conditionNode()         {}
func (Exists) conditionNode()         {}
func (CompareSelect) conditionNode()  {}

// Table is a table reference with an optional alias.
type Table struct {
	Name  string
	Alias string
}

// Ref returns the name columns of this table are qualified with.
func (t Table) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// Join is an inner join.
type Join struct {
	Table Table
	On    Tree
}

// SubSelect is a correlated sub-query. An empty Columns list selects the constant 1.
type SubSelect struct {
	Columns []Column
	From    Table
	Joins   []Join
	Where   Tree
}

// True and False are the constant leaves.
var (
	True  Tree = Bool{Value: true}
	False Tree = Bool{Value: false}
)

// AndOf conjoins children, dropping true leaves. An empty conjunction is true,
// any false child makes the whole conjunction false, and a single child is
// returned as-is.
func AndOf(children ...Tree) Tree {
	out := make([]Tree, 0, len(children))
	for _, c := range children {
		if c == nil {
			continue
		}
		if b, ok := c.(Bool); ok {
			if !b.Value {
				return False
			}
			continue
		}
		out = append(out, c)
	}
	switch len(out) {
	case 0:
		return True
	case 1:
		return out[0]
	}
	return And{Children: out}
}

// OrOf disjoins children, dropping false leaves. An empty disjunction is false,
// any true child makes the whole disjunction true, and a single child is
// returned as-is.
func OrOf(children ...Tree) Tree {
	out := make([]Tree, 0, len(children))
	for _, c := range children {
		if c == nil {
			continue
		}
		if b, ok := c.(Bool); ok {
			if b.Value {
				return True
			}
			continue
		}
		out = append(out, c)
	}
	switch len(out) {
	case 0:
		return False
	case 1:
		return out[0]
	}
	return Or{Children: out}
}

// NotOf negates child, folding constants and double negation.
func NotOf(child Tree) Tree {
	switch c := child.(type) {
	case Bool:
		return Bool{Value: !c.Value}
	case Not:
		return c.Child
	}
	return Not{Child: child}
}
