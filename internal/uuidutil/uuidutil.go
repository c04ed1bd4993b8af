// Package uuidutil normalizes the values of UUID-typed fields.
package uuidutil

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Normalize parses the common UUID spellings (hyphenated, braced, urn:uuid:,
// bare hex) and returns the canonical lower-case form.
func Normalize(raw string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid UUID value %q", raw)
	}
	return parsed.String(), nil
}

// New returns a random version 4 UUID in canonical form.
func New() string {
	return uuid.NewString()
}
