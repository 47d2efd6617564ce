package script

import (
	"fmt"

	"github.com/google/uuid"
)

// ID uniquely identifies one script for its whole lifetime.
type ID uuid.UUID

// Nil is the zero ID. It never names a live script.
var Nil = ID(uuid.Nil)

// nameSpace scopes NameID so derived IDs cannot collide with other UUIDv5 users.
var nameSpace = uuid.MustParse("6f1c0e52-8d55-4b0a-9c8e-2f1a6a3f0b7d")

// NewID returns a fresh time-sortable UUIDv7 identity.
func NewID() ID {
	return ID(uuid.Must(uuid.NewV7()))
}

// NameID derives a stable identity from a script name.
// The same name always yields the same ID.
func NameID(name string) ID {
	return ID(uuid.NewSHA1(nameSpace, []byte(name)))
}

// ParseID parses the canonical hyphenated form produced by String.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("parse script id %q: %w", s, err)
	}
	return ID(u), nil
}

// String returns the hyphenated form, e.g. "550e8400-e29b-41d4-a716-446655440000".
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the zero ID.
func (id ID) IsNil() bool {
	return id == Nil
}
