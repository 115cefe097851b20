/*
errors.go - Error taxonomy for the review engine

PURPOSE:
  All error types in one place. Every public operation returns either nil
  or an *OperationError whose Kind is one of the kind sentinels below, so
  callers can branch with errors.Is and still render a specific message
  from the application, detail and section carried on the error.

ERROR KINDS:
  ErrNotFound      referenced application, compartment or detail does not exist
  ErrValidation    business rule rejected the request
  ErrPersistence   the store rejected a read or write (always rolled back)
  ErrNotification  completion notification could not be sent (data already committed)
  ErrUnexpected    panic or cancellation inside a transactional scope

USAGE:
  err := engine.RevertConfirmedFellingDetailAmendments(ctx, appID, userID, proposedID)
  if errors.Is(err, review.ErrNotImported) {
      // reviewer-added detail, nothing to revert to
  }
*/
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persistence failure")
	ErrNotification = errors.New("notification failure")
	ErrUnexpected   = errors.New("unexpected failure")
)

// Specific validation failures. Each one also matches ErrValidation.
var (
	// ErrConfirmedDetailsExist is returned by a non-reimport import when a
	// confirmed property detail is already present.
	ErrConfirmedDetailsExist = fmt.Errorf("%w: confirmed felling and restocking details already exist", ErrValidation)

	// ErrNoConfirmedDetails is returned when marking the felling and
	// restocking section complete with nothing confirmed.
	ErrNoConfirmedDetails = fmt.Errorf("%w: no confirmed felling and restocking details", ErrValidation)

	// ErrNotImported is returned when reverting a reviewer-added detail.
	ErrNotImported = fmt.Errorf("%w: confirmed felling detail has no proposed felling detail", ErrValidation)

	// ErrSectionsIncomplete is returned when completing a review with open sections.
	ErrSectionsIncomplete = fmt.Errorf("%w: not every review section is complete", ErrValidation)

	// ErrReviewComplete is returned for any mutation after the review has completed.
	ErrReviewComplete = fmt.Errorf("%w: woodland officer review is already complete", ErrValidation)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OperationError is returned from every public engine and tracker operation.
type OperationError struct {
	Op            string
	Kind          error
	ApplicationID uuid.UUID
	DetailID      uuid.UUID
	Section       Section
	Err           error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	b.WriteString(" (application ")
	b.WriteString(e.ApplicationID.String())
	if e.DetailID != uuid.Nil {
		b.WriteString(", detail ")
		b.WriteString(e.DetailID.String())
	}
	if e.Section != "" {
		b.WriteString(", section ")
		b.WriteString(string(e.Section))
	}
	b.WriteString(")")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ValidationError is a field-level rule violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity string, id uuid.UUID) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// classify maps a cause onto one of the kind sentinels.
func classify(err error) error {
	var pe *panicError
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNotification):
		return ErrNotification
	case errors.As(err, &pe),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ErrUnexpected
	default:
		return ErrPersistence
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotification returns true if only the notification step failed.
func IsNotification(err error) bool { return errors.Is(err, ErrNotification) }
