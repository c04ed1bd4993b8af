package mutation

import (
	"context"
	"fmt"

	"querycore/internal/datamodel"
	"querycore/internal/integrity"
	"querycore/internal/naming"
	"querycore/internal/statement"
	"querycore/internal/writeplan"
)

// deleteRecords deletes ids of model. Relations configured to cascade delete
// their dependants first; relations whose other side requires a link to the
// records fail the delete; remaining links and list values are removed with
// the records. It returns the number of records deleted.
func (r *run) deleteRecords(ctx context.Context, model *datamodel.Model, ids []any) (int64, error) {
	return r.deleteCascading(ctx, model, ids, map[string]bool{})
}

func (r *run) deleteCascading(ctx context.Context, model *datamodel.Model, ids []any, deleting map[string]bool) (int64, error) {
	ids = pending(model, ids, deleting)
	if len(ids) == 0 {
		return 0, nil
	}

	for _, rf := range model.RelationFields() {
		relation, err := r.schema.RelationOf(rf)
		if err != nil {
			return 0, err
		}
		if relation.OnDeleteFor(rf.Side) != datamodel.OnDeleteCascade {
			continue
		}
		l, err := r.linkOf(rf)
		if err != nil {
			return 0, err
		}
		var dependants []any
		for _, id := range ids {
			linked, err := r.linkedChildIDs(ctx, l, id)
			if err != nil {
				return 0, err
			}
			dependants = append(dependants, linked...)
		}
		if _, err := r.deleteCascading(ctx, l.childModel, dependants, deleting); err != nil {
			return 0, err
		}
	}

	checks, err := integrity.DeleteChecks(r.schema, model, ids)
	if err != nil {
		return 0, err
	}
	for _, c := range checks {
		if err := r.check(ctx, c); err != nil {
			return 0, err
		}
	}

	for _, rf := range model.RelationFields() {
		table, own, _, err := r.schema.LinkColumns(rf)
		if err != nil {
			return 0, err
		}
		if _, err := r.exec(ctx, statement.DeleteLinks{Table: table, Where: statement.IDIn(table, own, ids)}); err != nil {
			return 0, err
		}
	}
	for _, f := range model.ScalarListFields() {
		table := model.ListTable(f)
		if _, err := r.exec(ctx, statement.Delete{Table: table, Where: statement.IDIn(table, naming.ListNodeIDColumn, ids)}); err != nil {
			return 0, err
		}
	}
	table := model.DBName()
	res, err := r.exec(ctx, statement.Delete{Table: table, Where: statement.IDIn(table, model.IDField().DBName(), ids)})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// pending drops ids already being deleted higher up a cascade chain and marks
// the rest.
func pending(model *datamodel.Model, ids []any, deleting map[string]bool) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		key := model.Name + "/" + fmt.Sprint(id)
		if deleting[key] {
			continue
		}
		deleting[key] = true
		out = append(out, id)
	}
	return out
}

// syncLists replaces the stored values of every written list field: all rows
// of each id are deleted and the new values reinserted in order, even when
// they are unchanged.
func (r *run) syncLists(ctx context.Context, model *datamodel.Model, ids []any, lists []writeplan.ListWrite) error {
	for _, lw := range lists {
		table := model.ListTable(lw.Field)
		if _, err := r.exec(ctx, statement.Delete{
			Table: table,
			Where: statement.IDIn(table, naming.ListNodeIDColumn, ids),
		}); err != nil {
			return err
		}
		if len(lw.Values) == 0 {
			continue
		}
		rows := make([][]any, 0, len(ids)*len(lw.Values))
		for _, id := range ids {
			for pos, v := range lw.Values {
				rows = append(rows, []any{id, pos, v})
			}
		}
		if _, err := r.exec(ctx, statement.Insert{
			Table:   table,
			Columns: []string{naming.ListNodeIDColumn, naming.ListPositionColumn, naming.ListValueColumn},
			Rows:    rows,
		}); err != nil {
			return err
		}
	}
	return nil
}
