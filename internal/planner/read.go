// Package planner builds read plans: the filter condition combined with cursor
// bounds, the total ordering, and the offset/limit of a paginated list query.
package planner

import (
	"querycore/internal/condition"
	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/naming"
	"querycore/internal/statement"
)

// ReadPlan is everything needed to render one list query.
type ReadPlan struct {
	Model     *datamodel.Model
	Condition condition.Tree
	Ordering  []statement.Order
	Offset    int
	// Limit is page size + 1 when a page size was requested, nil otherwise.
	Limit *int
	// PageSize is the caller-facing first/last count, nil when unbounded.
	PageSize *int
	// Reverse is set for last-N pages: the SQL ordering is flipped and rows
	// must be reversed back by TrimPage.
	Reverse bool
}

// BuildRead plans a list read of model. Arguments are validated first, so
// first+last together is rejected before any condition is built.
func BuildRead(schema *datamodel.Schema, model *datamodel.Model, args filter.QueryArguments) (ReadPlan, error) {
	if err := args.Validate(); err != nil {
		return ReadPlan{}, err
	}
	compiler := condition.NewCompiler(schema)
	alias := model.DBName()

	where, err := compiler.Compile(model, args.Filter, alias)
	if err != nil {
		return ReadPlan{}, err
	}

	orderField, direction := orderingOf(model, args.OrderBy)
	var bounds []condition.Tree
	if args.Before != nil {
		bounds = append(bounds, cursorCondition(compiler, model, alias, orderField, direction, Before, args.Before))
	}
	if args.After != nil {
		bounds = append(bounds, cursorCondition(compiler, model, alias, orderField, direction, After, args.After))
	}

	plan := ReadPlan{
		Model:     model,
		Condition: condition.AndOf(append([]condition.Tree{where}, bounds...)...),
		Ordering:  ordering(model, alias, orderField, direction),
	}
	if args.Skip != nil {
		plan.Offset = *args.Skip
	}
	switch {
	case args.First != nil:
		plan.PageSize = args.First
		plan.Limit = filter.Int(*args.First + 1)
	case args.Last != nil:
		plan.PageSize = args.Last
		plan.Limit = filter.Int(*args.Last + 1)
		plan.Reverse = true
		plan.Ordering = reverseOrdering(plan.Ordering)
	}
	return plan, nil
}

func orderingOf(model *datamodel.Model, orderBy *filter.OrderBy) (*datamodel.ScalarField, filter.OrderDirection) {
	if orderBy == nil || orderBy.Field == nil {
		return model.IDField(), filter.Ascending
	}
	direction := orderBy.Direction
	if direction == "" {
		direction = filter.Ascending
	}
	return orderBy.Field, direction
}

// ordering is orderField dir followed by the id tie-break ascending, which
// makes the order total even when orderField has duplicates.
func ordering(model *datamodel.Model, alias string, orderField *datamodel.ScalarField, direction filter.OrderDirection) []statement.Order {
	id := model.IDField()
	out := []statement.Order{{
		Column:     condition.Col(alias, orderField.DBName()),
		Descending: direction == filter.Descending,
	}}
	if orderField != id {
		out = append(out, statement.Order{Column: condition.Col(alias, id.DBName())})
	}
	return out
}

func reverseOrdering(in []statement.Order) []statement.Order {
	out := make([]statement.Order, len(in))
	for i, o := range in {
		out[i] = statement.Order{Column: o.Column, Descending: !o.Descending}
	}
	return out
}

// Select renders the plan as a statement reading columns (all column-backed
// scalar fields when none are given).
func (p ReadPlan) Select(columns ...string) statement.Select {
	if len(columns) == 0 {
		columns = Columns(p.Model)
	}
	return statement.Select{
		From:    condition.Table{Name: p.Model.DBName()},
		Columns: columns,
		Where:   p.Condition,
		OrderBy: p.Ordering,
		Offset:  p.Offset,
		Limit:   p.Limit,
	}
}

// Columns lists the storage names of the model's column-backed scalar fields.
// Hidden fields are left out, except the id.
func Columns(model *datamodel.Model) []string {
	fields := model.ScalarNonListFields()
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.IsHidden && !f.IsID {
			continue
		}
		out = append(out, f.DBName())
	}
	return out
}

// ListValuesSelect reads the stored values of a scalar list field for the given
// owner ids, ordered by owner then position.
func ListValuesSelect(model *datamodel.Model, field *datamodel.ScalarField, ids []any) statement.Select {
	table := model.ListTable(field)
	return statement.Select{
		From:    condition.Table{Name: table},
		Columns: []string{naming.ListNodeIDColumn, naming.ListPositionColumn, naming.ListValueColumn},
		Where:   statement.IDIn(table, naming.ListNodeIDColumn, ids),
		OrderBy: []statement.Order{
			{Column: condition.Col(table, naming.ListNodeIDColumn)},
			{Column: condition.Col(table, naming.ListPositionColumn)},
		},
	}
}

// TrimPage drops the look-ahead row fetched for page-size detection and
// restores natural order for last-N pages. It reports whether more rows exist
// beyond the page in the paging direction.
func TrimPage[T any](plan ReadPlan, rows []T) ([]T, bool) {
	hasMore := false
	if plan.PageSize != nil && len(rows) > *plan.PageSize {
		hasMore = true
		rows = rows[:*plan.PageSize]
	}
	if plan.Reverse {
		reversed := make([]T, len(rows))
		for i, r := range rows {
			reversed[len(rows)-1-i] = r
		}
		rows = reversed
	}
	return rows, hasMore
}
