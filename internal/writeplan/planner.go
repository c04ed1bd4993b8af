package writeplan

import (
	"sort"
	"time"

	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/queryerr"
	"querycore/internal/uuidutil"
)

// Planner plans root writes against one schema. It is safe for concurrent use.
type Planner struct {
	schema            *datamodel.Schema
	now               func() time.Time
	newID             func() string
	directiveDefaults map[string]map[string]any
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock sets the clock used for createdAt/updatedAt values.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// WithIDGenerator sets the generator for non-integer ids.
func WithIDGenerator(newID func() string) Option {
	return func(p *Planner) {
		p.newID = newID
	}
}

// WithDirectiveDefaults declares argument-level defaults per model and field.
// A field may carry a default either on the field or here, never both.
func WithDirectiveDefaults(defaults map[string]map[string]any) Option {
	return func(p *Planner) {
		p.directiveDefaults = defaults
	}
}

// New returns a planner for schema.
func New(schema *datamodel.Schema, opts ...Option) *Planner {
	p := &Planner{
		schema: schema,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuidutil.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schema returns the schema the planner was built for.
func (p *Planner) Schema() *datamodel.Schema {
	return p.schema
}

// PlanCreate plans the creation of one model record with nested writes.
func (p *Planner) PlanCreate(model *datamodel.Model, data map[string]any) (RootWrite, error) {
	node, err := p.planCreate(model, data, nil)
	if err != nil {
		return RootWrite{}, err
	}
	return RootWrite{Kind: KindCreate, Model: model, Create: node}, nil
}

// PlanUpdate plans the update of the record matched by where.
func (p *Planner) PlanUpdate(model *datamodel.Model, where datamodel.RecordFinder, data map[string]any) (RootWrite, error) {
	if err := checkFinder(model, where); err != nil {
		return RootWrite{}, err
	}
	node, err := p.planUpdate(model, &where, data, nil)
	if err != nil {
		return RootWrite{}, err
	}
	return RootWrite{Kind: KindUpdate, Model: model, Update: node}, nil
}

// PlanUpsert plans an update of the record matched by where, or its creation.
func (p *Planner) PlanUpsert(model *datamodel.Model, where datamodel.RecordFinder, create, update map[string]any) (RootWrite, error) {
	if err := checkFinder(model, where); err != nil {
		return RootWrite{}, err
	}
	createNode, err := p.planCreate(model, create, nil)
	if err != nil {
		return RootWrite{}, err
	}
	updateNode, err := p.planUpdate(model, &where, update, nil)
	if err != nil {
		return RootWrite{}, err
	}
	return RootWrite{
		Kind:   KindUpsert,
		Model:  model,
		Upsert: &UpsertNode{Model: model, Where: &where, Create: createNode, Update: updateNode},
	}, nil
}

// PlanDelete plans the deletion of the record matched by where.
func (p *Planner) PlanDelete(model *datamodel.Model, where datamodel.RecordFinder) (RootWrite, error) {
	if err := checkFinder(model, where); err != nil {
		return RootWrite{}, err
	}
	return RootWrite{Kind: KindDelete, Model: model, Delete: &DeleteNode{Model: model, Where: &where}}, nil
}

// PlanUpdateMany plans an update of every record matching the where document.
func (p *Planner) PlanUpdateMany(model *datamodel.Model, where map[string]any, data map[string]any) (RootWrite, error) {
	f, err := filter.Parse(p.schema, model, where)
	if err != nil {
		return RootWrite{}, err
	}
	args, lists, err := p.planManyData(model, data)
	if err != nil {
		return RootWrite{}, err
	}
	return RootWrite{
		Kind:       KindUpdateMany,
		Model:      model,
		UpdateMany: &UpdateManyNode{Model: model, Filter: f, Args: args, Lists: lists},
	}, nil
}

// PlanDeleteMany plans the deletion of every record matching the where document.
func (p *Planner) PlanDeleteMany(model *datamodel.Model, where map[string]any) (RootWrite, error) {
	f, err := filter.Parse(p.schema, model, where)
	if err != nil {
		return RootWrite{}, err
	}
	return RootWrite{Kind: KindDeleteMany, Model: model, DeleteMany: &DeleteManyNode{Model: model, Filter: f}}, nil
}

// PlanReset plans the removal of every record of every model.
func (p *Planner) PlanReset() RootWrite {
	return RootWrite{Kind: KindReset}
}

func checkFinder(model *datamodel.Model, where datamodel.RecordFinder) error {
	if where.Field == nil {
		return queryerr.Validation("a unique selector for %s is required", model.Name)
	}
	if where.Field.Model != model.Name {
		return queryerr.Validation("field %s.%s cannot select %s records", where.Field.Model, where.Field.Name, model.Name)
	}
	if !where.Field.IsUniqueOrID() {
		return queryerr.Validation("field %s.%s is not unique", model.Name, where.Field.Name)
	}
	return nil
}

// splitData separates an input document into scalar, list and relation parts
// and rejects unknown fields. Keys are processed in sorted order so plans are
// deterministic.
func splitData(model *datamodel.Model, data map[string]any) (scalars map[*datamodel.ScalarField]any, lists []ListWrite, relations []relationInput, err error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	scalars = make(map[*datamodel.ScalarField]any)
	for _, key := range keys {
		field, ok := model.Field(key)
		if !ok {
			return nil, nil, nil, queryerr.Validation("unknown field %s on model %s", key, model.Name)
		}
		switch f := field.(type) {
		case *datamodel.ScalarField:
			if f.IsList {
				values, err := coerceList(f, data[key])
				if err != nil {
					return nil, nil, nil, err
				}
				lists = append(lists, ListWrite{Field: f, Values: values})
				continue
			}
			value, err := coerceScalar(f, data[key])
			if err != nil {
				return nil, nil, nil, err
			}
			scalars[f] = value
		case *datamodel.RelationField:
			ops, ok := data[key].(map[string]any)
			if !ok {
				return nil, nil, nil, queryerr.Validation("relation field %s.%s takes an object of nested operations", model.Name, key)
			}
			relations = append(relations, relationInput{field: f, ops: ops})
		}
	}
	return scalars, lists, relations, nil
}

// orderedArgs returns assignments in model field order.
func orderedArgs(model *datamodel.Model, scalars map[*datamodel.ScalarField]any) []FieldValue {
	out := make([]FieldValue, 0, len(scalars))
	for _, f := range model.ScalarNonListFields() {
		if v, ok := scalars[f]; ok {
			out = append(out, FieldValue{Field: f, Value: v})
		}
	}
	return out
}

func (p *Planner) planCreate(model *datamodel.Model, data map[string]any, reachedVia *datamodel.RelationField) (*CreateNode, error) {
	scalars, lists, relations, err := splitData(model, data)
	if err != nil {
		return nil, err
	}

	id := model.IDField()
	if supplied, ok := scalars[id]; ok && (id.IsAutoGenerated || supplied == nil) {
		delete(scalars, id)
	}
	if _, ok := scalars[id]; !ok && id.Type != datamodel.TypeInt {
		scalars[id] = p.newID()
	}

	now := p.now()
	for _, f := range model.ScalarNonListFields() {
		if f.IsID {
			continue
		}
		directive, hasDirective := p.directiveDefaults[model.Name][f.Name]
		if f.Default != nil && hasDirective {
			return nil, queryerr.Validation("field %s.%s declares a default twice", model.Name, f.Name)
		}
		value, present := scalars[f]
		if present && value == nil && f.IsRequired {
			return nil, queryerr.Validation("required field %s.%s cannot be null", model.Name, f.Name)
		}
		if present {
			continue
		}
		switch {
		case f.Behaviour == datamodel.BehaviourCreatedAt, f.Behaviour == datamodel.BehaviourUpdatedAt:
			scalars[f] = now
		case f.Default != nil:
			if scalars[f], err = coerceScalar(f, f.Default); err != nil {
				return nil, err
			}
		case hasDirective:
			if scalars[f], err = coerceScalar(f, directive); err != nil {
				return nil, err
			}
		case f.IsRequired:
			return nil, queryerr.Validation("missing required field %s.%s", model.Name, f.Name)
		}
	}

	node := &CreateNode{Model: model, Args: orderedArgs(model, scalars), Lists: lists}
	if err := p.checkRequiredRelations(model, relations, reachedVia); err != nil {
		return nil, err
	}
	for _, rel := range relations {
		if err := p.planNested(&node.Nested, rel, true); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// checkRequiredRelations rejects a create that leaves a required to-one
// relation unlinked. The field the record is reached through is satisfied by
// the enclosing parent.
func (p *Planner) checkRequiredRelations(model *datamodel.Model, relations []relationInput, reachedVia *datamodel.RelationField) error {
	provided := make(map[*datamodel.RelationField]bool, len(relations))
	for _, rel := range relations {
		_, create := rel.ops["create"]
		_, connect := rel.ops["connect"]
		provided[rel.field] = create || connect
	}
	for _, rf := range model.RelationFields() {
		if !rf.IsRequired || rf.IsList || rf == reachedVia || provided[rf] {
			continue
		}
		relation, err := p.schema.RelationOf(rf)
		if err != nil {
			return err
		}
		qe := queryerr.RelationViolation(relation.Name, model.Name, relation.ModelFor(rf.Side.Opposite()))
		qe.Field = rf.Name
		return qe
	}
	return nil
}

func (p *Planner) planUpdate(model *datamodel.Model, where *datamodel.RecordFinder, data map[string]any, reachedVia *datamodel.RelationField) (*UpdateNode, error) {
	scalars, lists, relations, err := splitData(model, data)
	if err != nil {
		return nil, err
	}
	if err := checkUpdateScalars(model, scalars); err != nil {
		return nil, err
	}
	if len(scalars) > 0 || len(lists) > 0 {
		if f := model.FieldWithBehaviour(datamodel.BehaviourUpdatedAt); f != nil {
			if _, explicit := scalars[f]; !explicit {
				scalars[f] = p.now()
			}
		}
	}
	node := &UpdateNode{Model: model, Where: where, Args: orderedArgs(model, scalars), Lists: lists}
	for _, rel := range relations {
		if rel.field == reachedVia {
			return nil, queryerr.Validation("cannot write relation %s.%s through itself", model.Name, rel.field.Name)
		}
		if err := p.planNested(&node.Nested, rel, false); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func checkUpdateScalars(model *datamodel.Model, scalars map[*datamodel.ScalarField]any) error {
	for f, v := range scalars {
		// Link and list rows reference the id, so it is fixed once written.
		if f.IsID {
			return queryerr.Validation("id %s.%s cannot be updated", model.Name, f.Name)
		}
		if v == nil && f.IsRequired {
			return queryerr.Validation("required field %s.%s cannot be null", model.Name, f.Name)
		}
	}
	return nil
}

// planManyData plans the data of an updateMany: scalars and lists only.
func (p *Planner) planManyData(model *datamodel.Model, data map[string]any) ([]FieldValue, []ListWrite, error) {
	scalars, lists, relations, err := splitData(model, data)
	if err != nil {
		return nil, nil, err
	}
	if len(relations) > 0 {
		return nil, nil, queryerr.Validation("updateMany on %s cannot write relation %s", model.Name, relations[0].field.Name)
	}
	if err := checkUpdateScalars(model, scalars); err != nil {
		return nil, nil, err
	}
	if len(scalars) > 0 || len(lists) > 0 {
		if f := model.FieldWithBehaviour(datamodel.BehaviourUpdatedAt); f != nil {
			if _, explicit := scalars[f]; !explicit {
				scalars[f] = p.now()
			}
		}
	}
	return orderedArgs(model, scalars), lists, nil
}
