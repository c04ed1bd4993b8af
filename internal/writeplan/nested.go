package writeplan

import (
	"sort"

	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/integrity"
	"querycore/internal/queryerr"
)

type relationInput struct {
	field *datamodel.RelationField
	ops   map[string]any
}

var (
	toOneOps = map[string]bool{
		"create": true, "connect": true, "update": true, "upsert": true, "delete": true, "disconnect": true,
	}
	listOps = map[string]bool{
		"create": true, "connect": true, "update": true, "upsert": true, "delete": true, "disconnect": true,
		"set": true, "updateMany": true, "deleteMany": true,
	}
	underCreateOps = map[string]bool{"create": true, "connect": true}
)

// planNested appends one bucket entry per operation key under rel.field.
// underCreate is true when the parent record is created by the same write.
func (p *Planner) planNested(out *NestedWrites, rel relationInput, underCreate bool) error {
	field := rel.field
	child, err := p.schema.RelatedModel(field)
	if err != nil {
		return err
	}
	childField, err := p.schema.Opposite(field)
	if err != nil {
		return err
	}

	allowed := toOneOps
	if field.IsList {
		allowed = listOps
	}
	mode := integrity.Normal
	if underCreate {
		allowed = underCreateOps
		mode = integrity.ParentJustCreated
	}

	keys := make([]string, 0, len(rel.ops))
	for k := range rel.ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !allowed[key] {
			if underCreate {
				return queryerr.Validation("operation %s on %s.%s is not allowed while creating %s", key, field.Model, field.Name, field.Model)
			}
			return queryerr.Validation("unknown nested operation %s on %s.%s", key, field.Model, field.Name)
		}
	}

	if v, ok := rel.ops["create"]; ok {
		docs, err := asObjects("create", v)
		if err != nil {
			return err
		}
		if !field.IsList && len(docs) != 1 {
			return queryerr.Validation("create on to-one %s.%s takes a single object", field.Model, field.Name)
		}
		decision, err := integrity.Decide(p.schema, field, integrity.Create, mode)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			node, err := p.planCreate(child, doc, childField)
			if err != nil {
				return err
			}
			out.Creates = append(out.Creates, NestedCreate{Field: field, Mode: mode, Decision: decision, Create: node})
		}
	}

	if v, ok := rel.ops["update"]; ok {
		if err := p.planNestedUpdates(out, field, childField, child, v); err != nil {
			return err
		}
	}

	if v, ok := rel.ops["upsert"]; ok {
		if err := p.planNestedUpserts(out, field, childField, child, v); err != nil {
			return err
		}
	}

	if v, ok := rel.ops["delete"]; ok {
		if field.IsList {
			wheres, err := finders(child, "delete", v)
			if err != nil {
				return err
			}
			for i := range wheres {
				out.Deletes = append(out.Deletes, NestedDelete{Field: field, Where: &wheres[i]})
			}
		} else {
			if err := asTrue("delete", v); err != nil {
				return err
			}
			if err := integrity.CheckNestedDelete(p.schema, field); err != nil {
				return err
			}
			out.Deletes = append(out.Deletes, NestedDelete{Field: field})
		}
	}

	if v, ok := rel.ops["connect"]; ok {
		var wheres []datamodel.RecordFinder
		if field.IsList {
			if wheres, err = finders(child, "connect", v); err != nil {
				return err
			}
		} else {
			where, err := finderFrom(child, v)
			if err != nil {
				return err
			}
			wheres = []datamodel.RecordFinder{where}
		}
		decision, err := integrity.Decide(p.schema, field, integrity.Connect, mode)
		if err != nil {
			return err
		}
		for _, where := range wheres {
			out.Connects = append(out.Connects, NestedConnect{Field: field, Mode: mode, Decision: decision, Where: where})
		}
	}

	if v, ok := rel.ops["set"]; ok {
		wheres, err := finders(child, "set", v)
		if err != nil {
			return err
		}
		decision, err := integrity.Decide(p.schema, field, integrity.Connect, integrity.Normal)
		if err != nil {
			return err
		}
		if childField.IsRequired {
			return queryerr.RelationViolation(decision.Relation.Name, field.Model, child.Name)
		}
		out.Sets = append(out.Sets, NestedSet{Field: field, Decision: decision, Wheres: wheres})
	}

	if v, ok := rel.ops["disconnect"]; ok {
		if err := integrity.CheckDisconnect(p.schema, field); err != nil {
			return err
		}
		if field.IsList {
			wheres, err := finders(child, "disconnect", v)
			if err != nil {
				return err
			}
			for i := range wheres {
				out.Disconnects = append(out.Disconnects, NestedDisconnect{Field: field, Where: &wheres[i]})
			}
		} else {
			if err := asTrue("disconnect", v); err != nil {
				return err
			}
			out.Disconnects = append(out.Disconnects, NestedDisconnect{Field: field})
		}
	}

	if v, ok := rel.ops["updateMany"]; ok {
		docs, err := asObjects("updateMany", v)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			f, err := p.nestedFilter(child, doc["where"])
			if err != nil {
				return err
			}
			data, err := asObject("updateMany.data", doc["data"])
			if err != nil {
				return err
			}
			args, lists, err := p.planManyData(child, data)
			if err != nil {
				return err
			}
			out.UpdateManys = append(out.UpdateManys, NestedUpdateMany{Field: field, Filter: f, Args: args, Lists: lists})
		}
	}

	if v, ok := rel.ops["deleteMany"]; ok {
		docs, err := asObjects("deleteMany", v)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			f, err := p.nestedFilter(child, doc)
			if err != nil {
				return err
			}
			out.DeleteManys = append(out.DeleteManys, NestedDeleteMany{Field: field, Filter: f})
		}
	}
	return nil
}

func (p *Planner) planNestedUpdates(out *NestedWrites, field, childField *datamodel.RelationField, child *datamodel.Model, v any) error {
	if !field.IsList {
		data, err := asObject("update", v)
		if err != nil {
			return err
		}
		node, err := p.planUpdate(child, nil, data, childField)
		if err != nil {
			return err
		}
		out.Updates = append(out.Updates, NestedUpdate{Field: field, Update: node})
		return nil
	}
	docs, err := asObjects("update", v)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		where, err := finderFrom(child, doc["where"])
		if err != nil {
			return err
		}
		data, err := asObject("update.data", doc["data"])
		if err != nil {
			return err
		}
		node, err := p.planUpdate(child, &where, data, childField)
		if err != nil {
			return err
		}
		out.Updates = append(out.Updates, NestedUpdate{Field: field, Update: node})
	}
	return nil
}

func (p *Planner) planNestedUpserts(out *NestedWrites, field, childField *datamodel.RelationField, child *datamodel.Model, v any) error {
	decision, err := integrity.Decide(p.schema, field, integrity.Create, integrity.Normal)
	if err != nil {
		return err
	}
	docs, err := asObjects("upsert", v)
	if err != nil {
		return err
	}
	if !field.IsList && len(docs) != 1 {
		return queryerr.Validation("upsert on to-one %s.%s takes a single object", field.Model, field.Name)
	}
	for _, doc := range docs {
		var where *datamodel.RecordFinder
		if field.IsList {
			w, err := finderFrom(child, doc["where"])
			if err != nil {
				return err
			}
			where = &w
		}
		createDoc, err := asObject("upsert.create", doc["create"])
		if err != nil {
			return err
		}
		updateDoc, err := asObject("upsert.update", doc["update"])
		if err != nil {
			return err
		}
		createNode, err := p.planCreate(child, createDoc, childField)
		if err != nil {
			return err
		}
		updateNode, err := p.planUpdate(child, where, updateDoc, childField)
		if err != nil {
			return err
		}
		out.Upserts = append(out.Upserts, NestedUpsert{
			Field:    field,
			Mode:     integrity.Normal,
			Decision: decision,
			Where:    where,
			Create:   createNode,
			Update:   updateNode,
		})
	}
	return nil
}

func (p *Planner) nestedFilter(model *datamodel.Model, v any) (filter.Filter, error) {
	if v == nil {
		return nil, nil
	}
	doc, err := asObject("where", v)
	if err != nil {
		return nil, err
	}
	return filter.Parse(p.schema, model, doc)
}

func finders(model *datamodel.Model, key string, v any) ([]datamodel.RecordFinder, error) {
	docs, err := asObjects(key, v)
	if err != nil {
		return nil, err
	}
	out := make([]datamodel.RecordFinder, 0, len(docs))
	for _, doc := range docs {
		f, err := finderFrom(model, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
