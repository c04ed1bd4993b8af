package app

import (
	"querycore/internal/condition"
	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/integrity"
	"querycore/internal/render"
	"querycore/internal/writeplan"
)

// PlanNode is a printable view of one planned write.
type PlanNode struct {
	Op       string           `json:"op"`
	Model    string           `json:"model,omitempty"`
	Field    string           `json:"field,omitempty"`
	Where    map[string]any   `json:"where,omitempty"`
	Targets  []map[string]any `json:"targets,omitempty"`
	Filter   *FilterSQL       `json:"filter,omitempty"`
	Set      map[string]any   `json:"set,omitempty"`
	Lists    map[string][]any `json:"lists,omitempty"`
	Rule     []string         `json:"rule,omitempty"`
	Children []PlanNode       `json:"children,omitempty"`
}

// FilterSQL is a filter rendered for the configured dialect.
type FilterSQL struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
}

// Describe renders root as a PlanNode tree. Nested nodes appear in the order
// the executor runs them.
func (a *App) Describe(root writeplan.RootWrite) (PlanNode, error) {
	if err := a.ready(); err != nil {
		return PlanNode{}, err
	}
	d := describer{schema: a.schema, renderer: a.executor.Renderer()}
	return d.root(root)
}

type describer struct {
	schema   *datamodel.Schema
	renderer *render.Renderer
}

func (d describer) root(r writeplan.RootWrite) (PlanNode, error) {
	switch r.Kind {
	case writeplan.KindCreate:
		return d.create("create", "", r.Create)
	case writeplan.KindUpdate:
		return d.update("update", "", r.Update)
	case writeplan.KindUpsert:
		return d.upsert("", r.Upsert.Model, r.Upsert.Where, r.Upsert.Create, r.Upsert.Update)
	case writeplan.KindDelete:
		return PlanNode{Op: "delete", Model: r.Model.Name, Where: finderDoc(r.Delete.Where)}, nil
	case writeplan.KindUpdateMany:
		n := r.UpdateMany
		f, err := d.filter(n.Model, n.Filter)
		if err != nil {
			return PlanNode{}, err
		}
		return PlanNode{Op: "updateMany", Model: n.Model.Name, Filter: f, Set: values(n.Args), Lists: lists(n.Lists)}, nil
	case writeplan.KindDeleteMany:
		f, err := d.filter(r.DeleteMany.Model, r.DeleteMany.Filter)
		if err != nil {
			return PlanNode{}, err
		}
		return PlanNode{Op: "deleteMany", Model: r.Model.Name, Filter: f}, nil
	}
	return PlanNode{Op: string(r.Kind)}, nil
}

func (d describer) create(op, field string, n *writeplan.CreateNode) (PlanNode, error) {
	children, err := d.nested(n.Nested)
	if err != nil {
		return PlanNode{}, err
	}
	return PlanNode{
		Op:       op,
		Model:    n.Model.Name,
		Field:    field,
		Set:      values(n.Args),
		Lists:    lists(n.Lists),
		Children: children,
	}, nil
}

func (d describer) update(op, field string, n *writeplan.UpdateNode) (PlanNode, error) {
	children, err := d.nested(n.Nested)
	if err != nil {
		return PlanNode{}, err
	}
	return PlanNode{
		Op:       op,
		Model:    n.Model.Name,
		Field:    field,
		Where:    finderDoc(n.Where),
		Set:      values(n.Args),
		Lists:    lists(n.Lists),
		Children: children,
	}, nil
}

func (d describer) upsert(field string, model *datamodel.Model, where *datamodel.RecordFinder, create *writeplan.CreateNode, update *writeplan.UpdateNode) (PlanNode, error) {
	c, err := d.create("create", "", create)
	if err != nil {
		return PlanNode{}, err
	}
	u, err := d.update("update", "", update)
	if err != nil {
		return PlanNode{}, err
	}
	return PlanNode{Op: "upsert", Model: model.Name, Field: field, Where: finderDoc(where), Children: []PlanNode{c, u}}, nil
}

func (d describer) nested(w writeplan.NestedWrites) ([]PlanNode, error) {
	if w.Len() == 0 {
		return nil, nil
	}
	out := make([]PlanNode, 0, w.Len())
	for _, c := range w.Creates {
		n, err := d.create("create", c.Field.Name, c.Create)
		if err != nil {
			return nil, err
		}
		n.Rule = ruleNames(c.Decision.Rule)
		out = append(out, n)
	}
	for _, u := range w.Updates {
		n, err := d.update("update", u.Field.Name, u.Update)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	for _, u := range w.Upserts {
		n, err := d.upsert(u.Field.Name, u.Create.Model, u.Where, u.Create, u.Update)
		if err != nil {
			return nil, err
		}
		n.Rule = ruleNames(u.Decision.Rule)
		out = append(out, n)
	}
	for _, del := range w.Deletes {
		out = append(out, PlanNode{Op: "delete", Field: del.Field.Name, Where: finderDoc(del.Where)})
	}
	for _, c := range w.Connects {
		out = append(out, PlanNode{Op: "connect", Field: c.Field.Name, Where: finderDoc(&c.Where), Rule: ruleNames(c.Decision.Rule)})
	}
	for _, s := range w.Sets {
		targets := make([]map[string]any, len(s.Wheres))
		for i := range s.Wheres {
			targets[i] = finderDoc(&s.Wheres[i])
		}
		out = append(out, PlanNode{Op: "set", Field: s.Field.Name, Targets: targets, Rule: ruleNames(s.Decision.Rule)})
	}
	for _, dis := range w.Disconnects {
		out = append(out, PlanNode{Op: "disconnect", Field: dis.Field.Name, Where: finderDoc(dis.Where)})
	}
	for _, u := range w.UpdateManys {
		f, err := d.relatedFilter(u.Field, u.Filter)
		if err != nil {
			return nil, err
		}
		out = append(out, PlanNode{Op: "updateMany", Field: u.Field.Name, Filter: f, Set: values(u.Args), Lists: lists(u.Lists)})
	}
	for _, del := range w.DeleteManys {
		f, err := d.relatedFilter(del.Field, del.Filter)
		if err != nil {
			return nil, err
		}
		out = append(out, PlanNode{Op: "deleteMany", Field: del.Field.Name, Filter: f})
	}
	return out, nil
}

func (d describer) relatedFilter(field *datamodel.RelationField, f filter.Filter) (*FilterSQL, error) {
	child, err := d.schema.RelatedModel(field)
	if err != nil {
		return nil, err
	}
	return d.filter(child, f)
}

func (d describer) filter(model *datamodel.Model, f filter.Filter) (*FilterSQL, error) {
	if f == nil {
		return nil, nil
	}
	tree, err := condition.Compile(d.schema, model, f, model.DBName())
	if err != nil {
		return nil, err
	}
	cond, err := d.renderer.Condition(tree)
	if err != nil {
		return nil, err
	}
	sql, args, err := cond.ToSql()
	if err != nil {
		return nil, err
	}
	return &FilterSQL{SQL: sql, Args: args}, nil
}

func finderDoc(f *datamodel.RecordFinder) map[string]any {
	if f == nil || f.Field == nil {
		return nil
	}
	return map[string]any{f.Field.Name: f.Value}
}

func values(args []writeplan.FieldValue) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for _, a := range args {
		out[a.Field.Name] = a.Value
	}
	return out
}

func lists(ls []writeplan.ListWrite) map[string][]any {
	if len(ls) == 0 {
		return nil
	}
	out := make(map[string][]any, len(ls))
	for _, l := range ls {
		out[l.Field.Name] = l.Values
	}
	return out
}

func ruleNames(r integrity.Rule) []string {
	var out []string
	if r.CheckOldParent {
		out = append(out, "checkOldParent")
	}
	if r.CheckOldChild {
		out = append(out, "checkOldChild")
	}
	if r.RemoveParentLink {
		out = append(out, "removeParentLink")
	}
	if r.RemoveChildLink {
		out = append(out, "removeChildLink")
	}
	return out
}
