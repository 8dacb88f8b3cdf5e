// Package idgen generates identifiers for discovery runs.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID produced by gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using Default.
func New() string {
	return Default()
}

// Parse validates the UUID part of id after stripping prefix.
func Parse(id, prefix string) error {
	if len(id) < len(prefix) || id[:len(prefix)] != prefix {
		return fmt.Errorf("idgen: missing prefix %q in %q", prefix, id)
	}
	if _, err := uuid.Parse(id[len(prefix):]); err != nil {
		return fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return nil
}
