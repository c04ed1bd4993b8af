package mutation

import (
	"context"

	"querycore/internal/condition"
	"querycore/internal/datamodel"
	"querycore/internal/integrity"
	"querycore/internal/queryerr"
	"querycore/internal/statement"
	"querycore/internal/writeplan"
)

// link describes the link table of a relation field seen from its owner.
type link struct {
	relation    *datamodel.Relation
	childModel  *datamodel.Model
	table       string
	parentCol   string
	childCol    string
	parentModel string
}

func (r *run) linkOf(field *datamodel.RelationField) (link, error) {
	relation, err := r.schema.RelationOf(field)
	if err != nil {
		return link{}, err
	}
	child, err := r.schema.RelatedModel(field)
	if err != nil {
		return link{}, err
	}
	table, own, other, err := r.schema.LinkColumns(field)
	if err != nil {
		return link{}, err
	}
	return link{
		relation:    relation,
		childModel:  child,
		table:       table,
		parentCol:   own,
		childCol:    other,
		parentModel: field.Model,
	}, nil
}

func (l link) notConnected(ids ...any) error {
	return queryerr.RecordsNotConnected(l.relation.Name, l.parentModel, l.childModel.Name, ids...)
}

// linkedChildIDs returns the ids linked to parentID through l.
func (r *run) linkedChildIDs(ctx context.Context, l link, parentID any) ([]any, error) {
	rows, err := r.query(ctx, statement.Select{
		From:    condition.Table{Name: l.table},
		Columns: []string{l.childCol},
		Where:   statement.IDEquals(l.table, l.parentCol, parentID),
		OrderBy: []statement.Order{{Column: condition.Col(l.table, l.childCol)}},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[l.childCol]
	}
	return ids, nil
}

// linkedChildID returns the single child linked to parentID on a to-one field.
func (r *run) linkedChildID(ctx context.Context, l link, parentID any) (any, bool, error) {
	ids, err := r.linkedChildIDs(ctx, l, parentID)
	if err != nil || len(ids) == 0 {
		return nil, false, err
	}
	return ids[0], true, nil
}

func (r *run) connected(ctx context.Context, l link, parentID, childID any) (bool, error) {
	limit := 1
	rows, err := r.query(ctx, statement.Select{
		From:    condition.Table{Name: l.table},
		Columns: []string{l.parentCol},
		Where: condition.AndOf(
			statement.IDEquals(l.table, l.parentCol, parentID),
			statement.IDEquals(l.table, l.childCol, childID),
		),
		Limit: &limit,
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// targetChild resolves the child a nested update/delete/disconnect acts on:
// the record matched by where, which must be linked to parentID, or on to-one
// fields the currently linked record.
func (r *run) targetChild(ctx context.Context, l link, parentID any, where *datamodel.RecordFinder) (any, error) {
	if where == nil {
		id, found, err := r.linkedChildID(ctx, l, parentID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, l.notConnected(parentID)
		}
		return id, nil
	}
	childID, err := r.lookupID(ctx, l.childModel, *where)
	if err != nil {
		return nil, err
	}
	ok, err := r.connected(ctx, l, parentID, childID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, l.notConnected(parentID, childID)
	}
	return childID, nil
}

// nested runs the nested writes of one node in category order: creates,
// updates, upserts, deletes, connects, sets, disconnects, updateMany,
// deleteMany.
func (r *run) nested(ctx context.Context, parentID any, nw writeplan.NestedWrites) error {
	if nw.Len() == 0 {
		return nil
	}
	for _, w := range nw.Creates {
		if err := r.nestedCreate(ctx, w.Decision, parentID, w.Create); err != nil {
			return err
		}
	}
	for _, w := range nw.Updates {
		if err := r.nestedUpdate(ctx, w, parentID); err != nil {
			return err
		}
	}
	for _, w := range nw.Upserts {
		if err := r.nestedUpsert(ctx, w, parentID); err != nil {
			return err
		}
	}
	for _, w := range nw.Deletes {
		if err := r.nestedDelete(ctx, w, parentID); err != nil {
			return err
		}
	}
	for _, w := range nw.Connects {
		if err := r.nestedConnect(ctx, w.Decision, parentID, w.Where); err != nil {
			return err
		}
	}
	for _, w := range nw.Sets {
		if err := r.nestedSet(ctx, w, parentID); err != nil {
			return err
		}
	}
	for _, w := range nw.Disconnects {
		if err := r.nestedDisconnect(ctx, w, parentID); err != nil {
			return err
		}
	}
	for _, w := range nw.UpdateManys {
		if err := r.nestedUpdateMany(ctx, w, parentID); err != nil {
			return err
		}
	}
	for _, w := range nw.DeleteManys {
		if err := r.nestedDeleteMany(ctx, w, parentID); err != nil {
			return err
		}
	}
	return nil
}

// prepareLink runs the checks and prior-link removals a decision asks for
// before a new link between parentID and childID is written. childID is nil
// for a child that does not exist yet.
func (r *run) prepareLink(ctx context.Context, d integrity.Decision, parentID, childID any) error {
	for _, c := range d.RequiredChecks(parentID, childID) {
		if err := r.check(ctx, c); err != nil {
			return err
		}
	}
	if rm := d.ParentRemoval(parentID); rm != nil {
		if _, err := r.exec(ctx, *rm); err != nil {
			return err
		}
	}
	if childID == nil {
		return nil
	}
	if rm := d.ChildRemoval(childID); rm != nil {
		if _, err := r.exec(ctx, *rm); err != nil {
			return err
		}
	}
	if !d.RemoveParentLink && !d.RemoveChildLink {
		// Many-to-many: drop an identical link so reconnecting is idempotent.
		if _, err := r.exec(ctx, d.Unlink(parentID, childID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) nestedCreate(ctx context.Context, d integrity.Decision, parentID any, node *writeplan.CreateNode) error {
	if err := r.prepareLink(ctx, d, parentID, nil); err != nil {
		return err
	}
	childID, err := r.create(ctx, node)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, d.Link(parentID, childID))
	return err
}

func (r *run) nestedConnect(ctx context.Context, d integrity.Decision, parentID any, where datamodel.RecordFinder) error {
	child, err := r.schema.RelatedModel(d.ParentField)
	if err != nil {
		return err
	}
	childID, err := r.lookupID(ctx, child, where)
	if err != nil {
		return err
	}
	if err := r.prepareLink(ctx, d, parentID, childID); err != nil {
		return err
	}
	_, err = r.exec(ctx, d.Link(parentID, childID))
	return err
}

func (r *run) nestedUpdate(ctx context.Context, w writeplan.NestedUpdate, parentID any) error {
	l, err := r.linkOf(w.Field)
	if err != nil {
		return err
	}
	childID, err := r.targetChild(ctx, l, parentID, w.Update.Where)
	if err != nil {
		return err
	}
	_, err = r.update(ctx, w.Update, childID)
	return err
}

func (r *run) nestedUpsert(ctx context.Context, w writeplan.NestedUpsert, parentID any) error {
	l, err := r.linkOf(w.Field)
	if err != nil {
		return err
	}
	var (
		childID any
		found   bool
	)
	if w.Where == nil {
		childID, found, err = r.linkedChildID(ctx, l, parentID)
		if err != nil {
			return err
		}
	} else {
		row, exists, err := r.findOptional(ctx, l.childModel, *w.Where, []string{l.childModel.IDField().DBName()})
		if err != nil {
			return err
		}
		if exists {
			childID = row[l.childModel.IDField().DBName()]
			if found, err = r.connected(ctx, l, parentID, childID); err != nil {
				return err
			}
		}
	}
	if found {
		_, err := r.update(ctx, w.Update, childID)
		return err
	}
	return r.nestedCreate(ctx, w.Decision, parentID, w.Create)
}

func (r *run) nestedDelete(ctx context.Context, w writeplan.NestedDelete, parentID any) error {
	l, err := r.linkOf(w.Field)
	if err != nil {
		return err
	}
	childID, err := r.targetChild(ctx, l, parentID, w.Where)
	if err != nil {
		return err
	}
	_, err = r.deleteRecords(ctx, l.childModel, []any{childID})
	return err
}

func (r *run) nestedSet(ctx context.Context, w writeplan.NestedSet, parentID any) error {
	table, parentCol, _ := w.Decision.LinkTable()
	if _, err := r.exec(ctx, statement.DeleteLinks{
		Table: table,
		Where: statement.IDEquals(table, parentCol, parentID),
	}); err != nil {
		return err
	}
	for _, where := range w.Wheres {
		if err := r.nestedConnect(ctx, w.Decision, parentID, where); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) nestedDisconnect(ctx context.Context, w writeplan.NestedDisconnect, parentID any) error {
	l, err := r.linkOf(w.Field)
	if err != nil {
		return err
	}
	childID, err := r.targetChild(ctx, l, parentID, w.Where)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, statement.DeleteLinks{
		Table: l.table,
		Where: condition.AndOf(
			statement.IDEquals(l.table, l.parentCol, parentID),
			statement.IDEquals(l.table, l.childCol, childID),
		),
	})
	return err
}

// linkedMatching returns the ids of children linked to parentID that match
// the nested filter.
func (r *run) linkedMatching(ctx context.Context, l link, parentID any, where condition.Tree) ([]any, error) {
	childTable := l.childModel.DBName()
	linked := condition.Exists{Select: condition.SubSelect{
		From: condition.Table{Name: l.table},
		Where: condition.AndOf(
			statement.IDEquals(l.table, l.parentCol, parentID),
			condition.CompareColumns{
				Left:  condition.Col(l.table, l.childCol),
				Op:    condition.OpEq,
				Right: condition.Col(childTable, l.childModel.IDField().DBName()),
			},
		),
	}}
	return r.selectIDs(ctx, l.childModel, condition.AndOf(linked, where))
}

func (r *run) nestedUpdateMany(ctx context.Context, w writeplan.NestedUpdateMany, parentID any) error {
	l, err := r.linkOf(w.Field)
	if err != nil {
		return err
	}
	where, err := condition.Compile(r.schema, l.childModel, w.Filter, l.childModel.DBName())
	if err != nil {
		return err
	}
	ids, err := r.linkedMatching(ctx, l, parentID, where)
	if err != nil {
		return err
	}
	return r.updateIDs(ctx, l.childModel, ids, w.Args, w.Lists)
}

func (r *run) nestedDeleteMany(ctx context.Context, w writeplan.NestedDeleteMany, parentID any) error {
	l, err := r.linkOf(w.Field)
	if err != nil {
		return err
	}
	where, err := condition.Compile(r.schema, l.childModel, w.Filter, l.childModel.DBName())
	if err != nil {
		return err
	}
	ids, err := r.linkedMatching(ctx, l, parentID, where)
	if err != nil {
		return err
	}
	_, err = r.deleteRecords(ctx, l.childModel, ids)
	return err
}
