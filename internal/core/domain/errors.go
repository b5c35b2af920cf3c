// internal/core/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalState     = errors.New("order is in a terminal state")
	ErrConflict          = errors.New("conflict")
)

// Error carries the entity and identifier involved in a failed core operation.
type Error struct {
	Kind    error
	Entity  string
	ID      string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.ID != "":
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message)
	case e.Message != "":
		return e.Message
	case e.ID != "":
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Kind)
	default:
		return fmt.Sprintf("%s: %s", e.Entity, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NotFound reports a missing entity.
func NotFound(entity, id string) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id, Message: "not found"}
}

// InvalidInput reports a rejected argument.
func InvalidInput(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Entity: "input", Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a disallowed state change.
func InvalidTransition(entity, id string, from, to fmt.Stringer) error {
	return &Error{
		Kind:    ErrInvalidTransition,
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf("cannot move from %s to %s", from, to),
	}
}

// TerminalState reports an attempt to change an order that is already closed.
func TerminalState(id string, status OrderStatus) error {
	return &Error{
		Kind:    ErrTerminalState,
		Entity:  "order",
		ID:      id,
		Message: fmt.Sprintf("order is already %s", status),
	}
}

// Conflict reports a uniqueness violation.
func Conflict(entity, id, message string) error {
	return &Error{Kind: ErrConflict, Entity: entity, ID: id, Message: message}
}

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
