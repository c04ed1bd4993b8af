package dbexec

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"querycore/internal/naming"
	"querycore/internal/observability"
	"querycore/internal/planner"
	"querycore/internal/queryerr"
	"querycore/internal/statement"
)

const tracerName = "querycore/dbexec"

// Page is one page of a list read. Rows are keyed by column name; scalar list
// fields are attached under their field name in position order.
type Page struct {
	Rows    []statement.Row
	HasMore bool
}

// Read runs a planned list read and loads the scalar list fields of the
// returned records.
func (e *Executor) Read(ctx context.Context, plan planner.ReadPlan) (page Page, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "read",
		attribute.String("querycore.model", plan.Model.Name))
	defer func() { observability.FinishSpan(span, err, string(queryerr.KindOf(err))) }()

	rows, err := e.Query(ctx, plan.Select())
	if err != nil {
		return Page{}, err
	}
	rows, hasMore := planner.TrimPage(plan, rows)
	if err := e.attachLists(ctx, plan, rows); err != nil {
		return Page{}, err
	}
	observability.MetricsFromContext(ctx).RecordReadRows(ctx, int64(len(rows)), plan.Model.Name)
	return Page{Rows: rows, HasMore: hasMore}, nil
}

func (e *Executor) attachLists(ctx context.Context, plan planner.ReadPlan, rows []statement.Row) error {
	fields := plan.Model.ScalarListFields()
	if len(fields) == 0 || len(rows) == 0 {
		return nil
	}
	idCol := plan.Model.IDField().DBName()
	ids := make([]any, len(rows))
	byID := make(map[string]statement.Row, len(rows))
	for i, row := range rows {
		ids[i] = row[idCol]
		byID[fmt.Sprint(row[idCol])] = row
	}
	for _, f := range fields {
		if f.IsHidden {
			continue
		}
		for _, row := range rows {
			row[f.Name] = []any{}
		}
		values, err := e.Query(ctx, planner.ListValuesSelect(plan.Model, f, ids))
		if err != nil {
			return err
		}
		for _, v := range values {
			row, ok := byID[fmt.Sprint(v[naming.ListNodeIDColumn])]
			if !ok {
				continue
			}
			row[f.Name] = append(row[f.Name].([]any), v[naming.ListValueColumn])
		}
	}
	return nil
}
