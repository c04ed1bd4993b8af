// Package cursor encodes and decodes opaque pagination cursors. A cursor names
// the model it was issued for and the id of the boundary row; the id is
// string-coerced so large integers survive JSON.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"querycore/internal/datamodel"
	"querycore/internal/uuidutil"
)

type payloadV1 struct {
	Version int    `json:"v"`
	Model   string `json:"m"`
	ID      string `json:"id"`
}

// Encode builds an opaque cursor for the row of model with the given id.
func Encode(model string, id any) string {
	data, err := json.Marshal(payloadV1{Version: 1, Model: model, ID: coerceToString(id)})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a cursor issued for model and returns the boundary id converted
// to the native type of the model's id field.
func Decode(model *datamodel.Model, raw string) (any, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var payload payloadV1
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid cursor format")
	}
	if payload.Version != 1 {
		return nil, fmt.Errorf("invalid cursor format: unsupported version %d", payload.Version)
	}
	if payload.Model != model.Name {
		return nil, fmt.Errorf("cursor model mismatch: expected %s, got %s", model.Name, payload.Model)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("invalid cursor: missing id")
	}
	return ParseID(model.IDField(), payload.ID)
}

// ParseID converts a string-encoded id into the native type of field.
func ParseID(field *datamodel.ScalarField, s string) (any, error) {
	switch field.Type {
	case datamodel.TypeInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s id %q: %w", field.Model, s, err)
		}
		return n, nil
	case datamodel.TypeDateTime:
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s id %q: %w", field.Model, s, err)
		}
		return ts, nil
	case datamodel.TypeUUID:
		return uuidutil.Normalize(s)
	}
	return s, nil
}

func coerceToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
