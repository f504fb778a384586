package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID      ID
	SubjectID  ID
	ItemID     ID
	OutcomeKey ID
)

// String conversions for domain IDs
func (id RunID) String() string      { return ID(id).String() }
func (id SubjectID) String() string  { return ID(id).String() }
func (id ItemID) String() string     { return ID(id).String() }
func (id OutcomeKey) String() string { return ID(id).String() }

// NewRunID creates a new analysis run identifier
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseOutcomeKey parses a string into an OutcomeKey
func ParseOutcomeKey(s string) (OutcomeKey, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("outcome key cannot be empty")
	}
	return OutcomeKey(s), nil
}
