package datamodel

import (
	"querycore/internal/queryerr"
)

// RecordFinder identifies zero or one record through a unique or id field.
type RecordFinder struct {
	Field *ScalarField
	Value any
}

// NewRecordFinder builds a finder for model.field = value. The field must be
// unique or the id field.
func NewRecordFinder(model *Model, fieldName string, value any) (RecordFinder, error) {
	field, err := model.ScalarField(fieldName)
	if err != nil {
		return RecordFinder{}, queryerr.Validation("%s", err.Error())
	}
	if !field.IsUniqueOrID() {
		return RecordFinder{}, queryerr.Validation("field %s.%s is not unique and cannot identify a record", model.Name, fieldName)
	}
	if field.IsList {
		return RecordFinder{}, queryerr.Validation("list field %s.%s cannot identify a record", model.Name, fieldName)
	}
	if value == nil {
		return RecordFinder{}, queryerr.Validation("record finder %s.%s requires a value", model.Name, fieldName)
	}
	return RecordFinder{Field: field, Value: value}, nil
}

// IDFinder builds a finder on the model's id field.
func IDFinder(model *Model, id any) RecordFinder {
	return RecordFinder{Field: model.IDField(), Value: id}
}

// IsID reports whether the finder targets the id field.
func (f RecordFinder) IsID() bool {
	return f.Field != nil && f.Field.IsID
}

// FinderFromDocument builds a finder from a single-entry where document such as {"email": "a@b"}.
func FinderFromDocument(model *Model, doc map[string]any) (RecordFinder, error) {
	if len(doc) != 1 {
		return RecordFinder{}, queryerr.Validation("a unique selector for %s needs exactly one field, got %d", model.Name, len(doc))
	}
	for name, value := range doc {
		return NewRecordFinder(model, name, value)
	}
	return RecordFinder{}, nil
}
