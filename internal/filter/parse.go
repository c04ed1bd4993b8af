package filter

import (
	"fmt"
	"sort"

	"querycore/internal/datamodel"
	"querycore/internal/queryerr"
)

// Parse converts a where document into a Filter for model. The document maps
// field names to operator objects and accepts AND, OR and NOT combinators:
//
//	{"title": {"startsWith": "Go"}, "OR": [{"score": {"gt": 3}}, {"tags": {"has": "db"}}]}
//
// A bare (non-object) value on a scalar field means equals. Relation fields take
// every/some/none on lists and is/isNull on to-one fields.
func Parse(schema *datamodel.Schema, model *datamodel.Model, doc map[string]any) (Filter, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	p := parser{schema: schema}
	return p.parseDocument(model, doc)
}

type parser struct {
	schema *datamodel.Schema
}

func (p parser) parseDocument(model *datamodel.Model, doc map[string]any) (Filter, error) {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	filters := make([]Filter, 0, len(keys))
	for _, key := range keys {
		value := doc[key]
		switch key {
		case "AND", "OR", "NOT":
			children, err := p.parseList(model, key, value)
			if err != nil {
				return nil, err
			}
			switch key {
			case "AND":
				filters = append(filters, And{Filters: children})
			case "OR":
				filters = append(filters, Or{Filters: children})
			default:
				filters = append(filters, Not{Filters: children})
			}
		default:
			field, ok := model.Field(key)
			if !ok {
				return nil, queryerr.Validation("unknown field %s on model %s", key, model.Name)
			}
			var (
				f   Filter
				err error
			)
			switch field := field.(type) {
			case *datamodel.ScalarField:
				if field.IsList {
					f, err = p.parseScalarList(field, value)
				} else {
					f, err = p.parseScalar(field, value)
				}
			case *datamodel.RelationField:
				f, err = p.parseRelation(field, value)
			}
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return And{Filters: filters}, nil
}

// parseList accepts either an array of documents or a single document.
func (p parser) parseList(model *datamodel.Model, key string, value any) ([]Filter, error) {
	var docs []map[string]any
	switch v := value.(type) {
	case map[string]any:
		docs = []map[string]any{v}
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, queryerr.Validation("%s array items must be objects", key)
			}
			docs = append(docs, m)
		}
	case []map[string]any:
		docs = v
	default:
		return nil, queryerr.Validation("%s must be an object or an array", key)
	}
	out := make([]Filter, 0, len(docs))
	for _, d := range docs {
		f, err := p.parseDocument(model, d)
		if err != nil {
			return nil, err
		}
		if f == nil {
			f = And{}
		}
		out = append(out, f)
	}
	return out, nil
}

var scalarOps = map[string]ScalarOp{
	"eq":            Equals,
	"ne":            NotEquals,
	"contains":      Contains,
	"notContains":   NotContains,
	"startsWith":    StartsWith,
	"notStartsWith": NotStartsWith,
	"endsWith":      EndsWith,
	"notEndsWith":   NotEndsWith,
	"lt":            LessThan,
	"lte":           LessOrEqual,
	"gt":            GreaterThan,
	"gte":           GreaterOrEqual,
	"in":            In,
	"notIn":         NotIn,
}

func (p parser) parseScalar(field *datamodel.ScalarField, value any) (Filter, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		return Scalar{Field: field, Op: Equals, Value: value}, nil
	}
	keys := sortedKeys(ops)
	filters := make([]Filter, 0, len(keys))
	for _, key := range keys {
		raw := ops[key]
		if key == "isNull" {
			isNull, ok := raw.(bool)
			if !ok {
				return nil, queryerr.Validation("isNull on %s must be a boolean", field.Name)
			}
			op := Equals
			if !isNull {
				op = NotEquals
			}
			filters = append(filters, Scalar{Field: field, Op: op})
			continue
		}
		op, ok := scalarOps[key]
		if !ok {
			return nil, queryerr.Validation("unknown filter operator %s on %s", key, field.Name)
		}
		if op.IsListOp() {
			values, err := toSlice(raw)
			if err != nil {
				return nil, queryerr.Validation("%s on %s: %s", key, field.Name, err.Error())
			}
			filters = append(filters, Scalar{Field: field, Op: op, Values: values})
			continue
		}
		filters = append(filters, Scalar{Field: field, Op: op, Value: raw})
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return And{Filters: filters}, nil
}

func (p parser) parseScalarList(field *datamodel.ScalarField, value any) (Filter, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		return nil, queryerr.Validation("filter for list field %s must be an object", field.Name)
	}
	keys := sortedKeys(ops)
	filters := make([]Filter, 0, len(keys))
	for _, key := range keys {
		raw := ops[key]
		switch key {
		case "has":
			filters = append(filters, ScalarList{Field: field, Op: ListContains, Value: raw})
		case "hasEvery", "hasSome":
			values, err := toSlice(raw)
			if err != nil {
				return nil, queryerr.Validation("%s on %s: %s", key, field.Name, err.Error())
			}
			op := ContainsEvery
			if key == "hasSome" {
				op = ContainsSome
			}
			filters = append(filters, ScalarList{Field: field, Op: op, Values: values})
		default:
			return nil, queryerr.Validation("unknown list filter operator %s on %s", key, field.Name)
		}
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return And{Filters: filters}, nil
}

func (p parser) parseRelation(field *datamodel.RelationField, value any) (Filter, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		return nil, queryerr.Validation("filter for relation %s must be an object", field.Name)
	}
	related, err := p.schema.RelatedModel(field)
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(ops)
	filters := make([]Filter, 0, len(keys))
	for _, key := range keys {
		raw := ops[key]
		if key == "isNull" {
			if field.IsList {
				return nil, queryerr.Validation("isNull is only valid on to-one relation %s", field.Name)
			}
			isNull, ok := raw.(bool)
			if !ok {
				return nil, queryerr.Validation("isNull on %s must be a boolean", field.Name)
			}
			var f Filter = OneRelationIsNull{Field: field}
			if !isNull {
				f = Not{Filters: []Filter{f}}
			}
			filters = append(filters, f)
			continue
		}

		cond := RelationCondition(key)
		switch cond {
		case Every, AtLeastOne, None:
			if !field.IsList {
				return nil, queryerr.Validation("%s is only valid on list relation %s", key, field.Name)
			}
		case ToOne:
			if field.IsList {
				return nil, queryerr.Validation("is is only valid on to-one relation %s", field.Name)
			}
		default:
			return nil, queryerr.Validation("unknown relation filter %s on %s", key, field.Name)
		}
		nestedDoc, ok := raw.(map[string]any)
		if !ok && raw != nil {
			return nil, queryerr.Validation("%s on %s must be an object", key, field.Name)
		}
		nested, err := p.parseDocument(related, nestedDoc)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", field.Name, key, err)
		}
		filters = append(filters, Relation{Field: field, Nested: nested, Condition: cond})
	}
	if len(filters) == 1 {
		return filters[0], nil
	}
	return And{Filters: filters}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toSlice(v any) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, nil
	case []int:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, nil
	case []float64:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected an array, got %T", v)
}
