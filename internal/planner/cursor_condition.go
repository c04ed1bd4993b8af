package planner

import (
	"querycore/internal/condition"
	"querycore/internal/datamodel"
	"querycore/internal/filter"
)

// CursorKind tells which side of the cursor row a page lies on.
type CursorKind string

const (
	Before CursorKind = "before"
	After  CursorKind = "after"
)

// cursorOps returns the operator on the ordering field and on the id tie-break.
//
//	before asc:  <  <
//	before desc: >  <
//	after  asc:  >  >
//	after  desc: <  >
func cursorOps(kind CursorKind, direction filter.OrderDirection) (orderOp, idOp condition.Op) {
	if kind == Before {
		idOp = condition.OpLt
		if direction == filter.Descending {
			return condition.OpGt, idOp
		}
		return condition.OpLt, idOp
	}
	idOp = condition.OpGt
	if direction == filter.Descending {
		return condition.OpLt, idOp
	}
	return condition.OpGt, idOp
}

// cursorCondition bounds the page by the cursor row:
//
//	(orderField = (SELECT orderField ... WHERE id = c) AND id idOp c)
//	OR orderField orderOp (SELECT orderField ... WHERE id = c)
func cursorCondition(
	compiler *condition.Compiler,
	model *datamodel.Model,
	alias string,
	orderField *datamodel.ScalarField,
	direction filter.OrderDirection,
	kind CursorKind,
	cursorID any,
) condition.Tree {
	id := model.IDField()
	orderOp, idOp := cursorOps(kind, direction)
	if orderField == id {
		return condition.Compare{Column: condition.Col(alias, id.DBName()), Op: orderOp, Value: cursorID}
	}

	cursorValue := func() condition.SubSelect {
		ca := compiler.NextAlias(model.DBName())
		return condition.SubSelect{
			Columns: []condition.Column{condition.Col(ca, orderField.DBName())},
			From:    condition.Table{Name: model.DBName(), Alias: ca},
			Where:   condition.Compare{Column: condition.Col(ca, id.DBName()), Op: condition.OpEq, Value: cursorID},
		}
	}
	orderCol := condition.Col(alias, orderField.DBName())
	return condition.OrOf(
		condition.AndOf(
			condition.CompareSelect{Column: orderCol, Op: condition.OpEq, Select: cursorValue()},
			condition.Compare{Column: condition.Col(alias, id.DBName()), Op: idOp, Value: cursorID},
		),
		condition.CompareSelect{Column: orderCol, Op: orderOp, Select: cursorValue()},
	)
}
