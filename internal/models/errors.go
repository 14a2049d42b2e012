package models

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound signals that the target row id no longer exists in the
// store at write time.
var ErrTaskNotFound = errors.New("task not found")

// ErrVersionConflict signals that a write carried a stale version token:
// another writer updated the row first. Conflicts are never merged.
var ErrVersionConflict = errors.New("task was modified by another user")

// ErrEmployeeNotFound signals that a chat identity has no employee record.
var ErrEmployeeNotFound = errors.New("employee not found")

// ValidationError rejects a mutation before any store call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the fields required of every stored task.
func (t Task) Validate(statuses StatusSet) error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if t.Project == "" {
		return &ValidationError{Field: "project", Reason: "must not be empty"}
	}
	if !statuses.Valid(t.Status) {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", t.Status)}
	}
	return nil
}
