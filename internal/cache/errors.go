package cache

import (
	"errors"
	"fmt"

	"github.com/roach88/tether/internal/ir"
)

// ErrLiveQueryDisposed is returned when reading a disposed LiveQuery.
var ErrLiveQueryDisposed = errors.New("live query has been disposed")

// Reasons a Model is stale.
const (
	ReasonUnloaded = "model was unloaded from its cache"
	ReasonAbsent   = "record is not present in the source"
)

// StaleModelError reports access to a Model whose backing record is gone.
// It names the model's type and id and the field that was accessed.
type StaleModelError struct {
	Type   string
	ID     string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *StaleModelError) Error() string {
	return fmt.Sprintf("stale model %s:%s: cannot access %q: %s", e.Type, e.ID, e.Field, e.Reason)
}

func newStaleError(id ir.RecordIdentity, field, reason string) *StaleModelError {
	return &StaleModelError{Type: id.Type, ID: id.ID, Field: field, Reason: reason}
}

// IsStaleModelError returns true if err is or wraps a StaleModelError.
func IsStaleModelError(err error) bool {
	var se *StaleModelError
	return errors.As(err, &se)
}

// UnknownFieldError reports access to a field the model does not declare,
// or access through the wrong kind of getter.
type UnknownFieldError struct {
	Type  string
	Field string
	// Want is the kind the caller asked for. It is ignored when AnyKind is
	// set.
	Want    ir.FieldKind
	AnyKind bool
	// Got is the declared kind, when the field exists.
	Got *ir.FieldKind
}

// Error implements the error interface.
func (e *UnknownFieldError) Error() string {
	if e.Got != nil {
		return fmt.Sprintf("field %s.%s is a %s, not a %s", e.Type, e.Field, *e.Got, e.Want)
	}
	if e.AnyKind {
		return fmt.Sprintf("model %q has no field %q", e.Type, e.Field)
	}
	return fmt.Sprintf("model %q has no %s field %q", e.Type, e.Want, e.Field)
}

// IsUnknownFieldError returns true if err is or wraps an UnknownFieldError.
func IsUnknownFieldError(err error) bool {
	var ue *UnknownFieldError
	return errors.As(err, &ue)
}
