/*
errors.go - Centralized error types for the audit engine

PURPOSE:
  All Go error values in one place for consistency and discoverability.
  Domain packages wrap these with additional context.

ERROR CATEGORIES:
  1. Raw-data errors - malformed rows and values (skipped per row)
  2. Binding errors - submissions that match no participant or obligation
  3. Correction errors - reviews that reference missing records or are malformed
  4. Invariant violations - duplicate ids, fatal to that insertion only

  Categories 2-4 are normally recorded in the audit error ledger rather than
  returned; see audit/ledger.go. Only schedule overflow and I/O errors are
  expected to travel up to the caller.

USAGE:
  if errors.Is(err, generic.ErrDuplicateID) {
      ledger.Record(...)
  }

SEE ALSO:
  - audit/ledger.go: the per-pass error ledger
  - review/registry.go: ArityError, UnknownTypeError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateID is returned when an entity with the same id already
	// exists. Every entity type rejects duplicates; the record is dropped.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidValue is returned when a field cannot be parsed.
	ErrInvalidValue = errors.New("invalid value")

	// ErrScheduleOverflow is returned when due-date generation runs past its
	// hard cap. It is fatal for the participant being scheduled.
	ErrScheduleOverflow = errors.New("schedule overflow")

	// ErrTooFewParams is returned when a review carries fewer parameters
	// than its type requires.
	ErrTooFewParams = errors.New("too few review parameters")

	// ErrUnknownReviewType is returned for review type tags with no handler.
	ErrUnknownReviewType = errors.New("unknown review type")

	// ErrMalformedRow is returned for an input row that cannot be parsed.
	ErrMalformedRow = errors.New("malformed row")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateIDError names the entity kind and id that collided.
type DuplicateIDError struct {
	Kind string // "participant", "submission", "vacation", "review"
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate %s id %q", e.Kind, e.ID)
}

func (e *DuplicateIDError) Unwrap() error {
	return ErrDuplicateID
}

// NotFoundError names the entity kind and id that could not be found.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvalidValueError names a field that failed to parse.
type InvalidValueError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *InvalidValueError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidValue, e.Err}
	}
	return []error{ErrInvalidValue}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input data
// rather than a fault in the engine.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrTooFewParams) ||
		errors.Is(err, ErrUnknownReviewType) ||
		errors.Is(err, ErrMalformedRow)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
