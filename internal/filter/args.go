package filter

import (
	"strings"

	"querycore/internal/datamodel"
	"querycore/internal/queryerr"
)

// OrderDirection is the sort direction of an OrderBy.
type OrderDirection string

const (
	Ascending  OrderDirection = "ASC"
	Descending OrderDirection = "DESC"
)

// ParseDirection accepts asc/desc in any case. Empty input is ascending.
func ParseDirection(s string) (OrderDirection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return Ascending, nil
	case "DESC":
		return Descending, nil
	}
	return "", queryerr.Validation("invalid order direction %q", s)
}

// OrderBy orders a read by a single scalar field.
type OrderBy struct {
	Field     *datamodel.ScalarField
	Direction OrderDirection
}

// QueryArguments are the read arguments of a list query. First and Last are
// mutually exclusive.
type QueryArguments struct {
	Filter  Filter
	OrderBy *OrderBy
	Skip    *int
	First   *int
	Last    *int
	Before  any
	After   any
}

// Validate rejects malformed arguments before any planning happens.
func (a QueryArguments) Validate() error {
	if a.First != nil && a.Last != nil {
		return queryerr.Validation("cannot provide both first and last")
	}
	if a.First != nil && *a.First < 0 {
		return queryerr.Validation("first must be non-negative, got %d", *a.First)
	}
	if a.Last != nil && *a.Last < 0 {
		return queryerr.Validation("last must be non-negative, got %d", *a.Last)
	}
	if a.Skip != nil && *a.Skip < 0 {
		return queryerr.Validation("skip must be non-negative, got %d", *a.Skip)
	}
	if a.OrderBy != nil {
		if a.OrderBy.Field == nil {
			return queryerr.Validation("orderBy requires a field")
		}
		if a.OrderBy.Field.IsList {
			return queryerr.Validation("cannot order by list field %s", a.OrderBy.Field.Name)
		}
	}
	return nil
}

// Int returns a pointer to n, for building QueryArguments literals.
func Int(n int) *int {
	return &n
}
