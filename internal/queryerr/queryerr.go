// Package queryerr defines the error taxonomy shared by planning and execution.
// Every error carries the model, field, relation and ids involved so callers can
// render a precise message without parsing strings.
package queryerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	KindRelationViolation         Kind = "relation_violation"
	KindRecordNotFound            Kind = "record_not_found"
	KindRecordsNotConnected       Kind = "records_not_connected"
	KindUniqueConstraintViolation Kind = "unique_violation"
	KindNullConstraintViolation   Kind = "not_null_violation"
	KindForeignKeyViolation       Kind = "foreign_key_violation"
	KindValidation                Kind = "invalid_input"
	KindConnector                 Kind = "connector_error"
)

// Error is the structured error returned by every querycore package.
type Error struct {
	Kind     Kind
	Message  string
	Model    string
	Field    string
	Relation string
	IDs      []any
	// Code is the engine-specific error number when the error came from the driver.
	Code  string
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	var ctx []string
	if e.Model != "" {
		ctx = append(ctx, "model="+e.Model)
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if e.Relation != "" {
		ctx = append(ctx, "relation="+e.Relation)
	}
	if len(e.IDs) > 0 {
		ctx = append(ctx, fmt.Sprintf("ids=%v", e.IDs))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Cause != nil && e.Kind == KindConnector {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Extensions exposes the error context as a flat map for response serializers.
func (e *Error) Extensions() map[string]interface{} {
	ext := map[string]interface{}{
		"code": string(e.Kind),
	}
	if e.Model != "" {
		ext["model"] = e.Model
	}
	if e.Field != "" {
		ext["field"] = e.Field
	}
	if e.Relation != "" {
		ext["relation"] = e.Relation
	}
	if len(e.IDs) > 0 {
		ext["ids"] = e.IDs
	}
	if e.Code != "" {
		ext["engine_code"] = e.Code
	}
	return ext
}

// Is reports whether err is (or wraps) a querycore error of the given kind.
func Is(err error, kind Kind) bool {
	var qe *Error
	if !errors.As(err, &qe) {
		return false
	}
	return qe.Kind == kind
}

// KindOf returns the kind of err, KindConnector for errors outside the
// taxonomy and the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindConnector
}

// Validation builds a ValidationError.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// RelationViolation builds an error for a change that would break a required relation.
func RelationViolation(relation, modelA, modelB string) *Error {
	return &Error{
		Kind:     KindRelationViolation,
		Message:  fmt.Sprintf("the change you are trying to make would violate the required relation %q between %s and %s", relation, modelA, modelB),
		Relation: relation,
		Model:    modelA,
	}
}

// RecordNotFound builds an error for a unique lookup that matched zero rows.
func RecordNotFound(model, field string, value any) *Error {
	return &Error{
		Kind:    KindRecordNotFound,
		Message: fmt.Sprintf("no %s record found for %s = %v", model, field, value),
		Model:   model,
		Field:   field,
		IDs:     []any{value},
	}
}

// RecordsNotConnected builds an error for a nested write that assumed an existing link.
func RecordsNotConnected(relation, parentModel, childModel string, ids ...any) *Error {
	return &Error{
		Kind:     KindRecordsNotConnected,
		Message:  fmt.Sprintf("the %s and %s records are not connected through relation %q", parentModel, childModel, relation),
		Relation: relation,
		Model:    parentModel,
		IDs:      ids,
	}
}

// Connector wraps an opaque I/O or driver failure.
func Connector(err error) *Error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	return &Error{Kind: KindConnector, Message: "connector error", Cause: err}
}

// WithModel returns a copy of e tagged with the originating model and field.
func (e *Error) WithModel(model, field string) *Error {
	out := *e
	if out.Model == "" {
		out.Model = model
	}
	if out.Field == "" {
		out.Field = field
	}
	return &out
}

// Engine wraps a constraint failure reported by the database engine.
func Engine(kind Kind, message, code string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Code: code, Cause: cause}
}
