package memsource

import (
	"errors"
	"fmt"

	"github.com/roach88/tether/internal/ir"
)

// ErrSourceClosed is returned by Submit and Execute after Stop, and settles
// requests still queued when Run exits on cancellation.
var ErrSourceClosed = errors.New("record source closed")

// ValidationError reports an operation that does not conform to the schema.
// It is returned synchronously by Submit; the transform is never queued.
type ValidationError struct {
	// Op is the operation name, e.g. "replaceAttribute".
	Op string

	// Record is the operation's target.
	Record ir.RecordIdentity

	// Field names the offending key, attribute or relationship, if any.
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s on %s.%s: %s", e.Op, e.Record, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s on %s: %s", e.Op, e.Record, e.Message)
}

// RejectCode categorizes transform rejections.
type RejectCode string

const (
	// RejectRecordNotFound indicates an operation targeted a missing record.
	RejectRecordNotFound RejectCode = "RECORD_NOT_FOUND"

	// RejectRecordExists indicates addRecord on an identity already present.
	RejectRecordExists RejectCode = "RECORD_EXISTS"

	// RejectJournalFailed indicates the transform could not be persisted.
	RejectJournalFailed RejectCode = "JOURNAL_FAILED"
)

// TransformRejectedError reports a transform the source refused to apply.
// No operation of a rejected transform takes effect.
type TransformRejectedError struct {
	// Code identifies the rejection category.
	Code RejectCode

	// Message is a human-readable description.
	Message string

	// TransformID and Seq identify the rejected transform.
	TransformID string
	Seq         int64

	// Op and Record identify the first failing operation.
	Op     string
	Record ir.RecordIdentity

	// Cause is the underlying error, if any (journal failures).
	Cause error
}

// Error implements the error interface.
func (e *TransformRejectedError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (seq=%d, op=%s, record=%s)", e.Code, e.Message, e.Seq, e.Op, e.Record)
	}
	return fmt.Sprintf("%s: %s (seq=%d)", e.Code, e.Message, e.Seq)
}

// Unwrap returns the underlying cause.
func (e *TransformRejectedError) Unwrap() error {
	return e.Cause
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRejected returns true if err is or wraps a TransformRejectedError.
func IsRejected(err error) bool {
	var re *TransformRejectedError
	return errors.As(err, &re)
}

// IsNotFound returns true if err is a rejection for a missing record.
func IsNotFound(err error) bool {
	var re *TransformRejectedError
	if errors.As(err, &re) {
		return re.Code == RejectRecordNotFound
	}
	return false
}

func notFound(op ir.Operation, id ir.RecordIdentity) *TransformRejectedError {
	return &TransformRejectedError{
		Code:    RejectRecordNotFound,
		Message: fmt.Sprintf("record %s does not exist", id),
		Op:      op.Op(),
		Record:  id,
	}
}

func alreadyExists(op ir.Operation, id ir.RecordIdentity) *TransformRejectedError {
	return &TransformRejectedError{
		Code:    RejectRecordExists,
		Message: fmt.Sprintf("record %s already exists", id),
		Op:      op.Op(),
		Record:  id,
	}
}
