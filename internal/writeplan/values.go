package writeplan

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"querycore/internal/datamodel"
	"querycore/internal/queryerr"
	"querycore/internal/uuidutil"
)

// coerceScalar normalises a decoded input value to the Go type the connector
// binds for field. JSON and YAML decoders deliver numbers as float64.
func coerceScalar(field *datamodel.ScalarField, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch field.Type {
	case datamodel.TypeInt:
		return coerceInt(field, v)
	case datamodel.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		}
	case datamodel.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case datamodel.TypeDateTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, queryerr.Validation("field %s.%s expects an RFC 3339 timestamp, got %q", field.Model, field.Name, t)
			}
			return parsed, nil
		}
	case datamodel.TypeEnum:
		s, ok := v.(string)
		if !ok {
			break
		}
		if len(field.EnumValues) > 0 && !slices.Contains(field.EnumValues, s) {
			return nil, queryerr.Validation("value %q is not a member of enum %s.%s", s, field.Model, field.Name)
		}
		return s, nil
	case datamodel.TypeUUID:
		s, ok := v.(string)
		if !ok {
			break
		}
		id, err := uuidutil.Normalize(s)
		if err != nil {
			return nil, queryerr.Validation("field %s.%s: %s", field.Model, field.Name, err.Error())
		}
		return id, nil
	case datamodel.TypeJSON:
		switch v.(type) {
		case string, []byte:
			return v, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, queryerr.Validation("field %s.%s: %s", field.Model, field.Name, err.Error())
		}
		return string(raw), nil
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		}
	}
	return nil, queryerr.Validation("field %s.%s of type %s cannot take %T", field.Model, field.Name, field.Type, v)
}

func coerceInt(field *datamodel.ScalarField, v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, queryerr.Validation("field %s.%s expects an integer, got %v", field.Model, field.Name, n)
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return nil, queryerr.Validation("field %s.%s value %v is out of the integer range", field.Model, field.Name, n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	}
	return nil, queryerr.Validation("field %s.%s expects an integer, got %T", field.Model, field.Name, v)
}

// coerceList accepts an array, or a {"set": array} object.
func coerceList(field *datamodel.ScalarField, v any) ([]any, error) {
	if m, ok := v.(map[string]any); ok {
		if len(m) != 1 {
			return nil, queryerr.Validation("list field %s.%s accepts only {set: [...]}", field.Model, field.Name)
		}
		set, ok := m["set"]
		if !ok {
			return nil, queryerr.Validation("list field %s.%s accepts only {set: [...]}", field.Model, field.Name)
		}
		v = set
	}
	var raw []any
	switch s := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		raw = s
	case []string:
		for _, item := range s {
			raw = append(raw, item)
		}
	default:
		return nil, queryerr.Validation("list field %s.%s expects an array, got %T", field.Model, field.Name, v)
	}
	out := make([]any, len(raw))
	for i, item := range raw {
		if item == nil {
			return nil, queryerr.Validation("list field %s.%s cannot contain null", field.Model, field.Name)
		}
		c, err := coerceScalar(field, item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Finder builds the record finder of a root write from a where document such
// as {"email": "a@b"}, coercing the value to the field's type.
func Finder(model *datamodel.Model, where map[string]any) (datamodel.RecordFinder, error) {
	return finderFrom(model, where)
}

// finderFrom builds a record finder from a single-field where document with
// the value coerced to the field's type.
func finderFrom(model *datamodel.Model, v any) (datamodel.RecordFinder, error) {
	doc, ok := v.(map[string]any)
	if !ok {
		return datamodel.RecordFinder{}, queryerr.Validation("a unique selector for %s must be an object, got %T", model.Name, v)
	}
	finder, err := datamodel.FinderFromDocument(model, doc)
	if err != nil {
		return datamodel.RecordFinder{}, err
	}
	value, err := coerceScalar(finder.Field, finder.Value)
	if err != nil {
		return datamodel.RecordFinder{}, err
	}
	finder.Value = value
	return finder, nil
}

// asObjects accepts one object or an array of objects.
func asObjects(key string, v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []map[string]any:
		return t, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, queryerr.Validation("%s entries must be objects, got %T", key, item)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, queryerr.Validation("%s must be an object or an array of objects, got %T", key, v)
}

func asObject(key string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, queryerr.Validation("%s must be an object, got %T", key, v)
	}
	return m, nil
}

func asTrue(key string, v any) error {
	if b, ok := v.(bool); !ok || !b {
		return queryerr.Validation("%s on a to-one relation takes true", key)
	}
	return nil
}
