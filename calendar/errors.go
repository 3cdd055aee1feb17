/*
errors.go - Error taxonomy for the calendar engine

PURPOSE:
  All error types in one place. Every failure is returned as a value;
  callers classify with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Capacity   - slot already holds SlotCapacity items
  2. NotFound   - unknown or soft-deleted id
  3. Conflict   - store reported a rank collision twice in a row
  4. Validation - malformed input
  5. Forbidden  - authorizer refused the actor
  6. Invariant  - internal state is inconsistent (a bug, never user-caused)

SEE ALSO:
  - leave/errors.go: BalanceError and TransitionError
  - api/handlers.go: HTTP status mapping
*/
package calendar

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCapacity is returned when a slot is full and no override was granted.
	ErrCapacity = errors.New("slot capacity exceeded")

	// ErrNotFound is returned for unknown or already-deleted ids.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent writer kept taking the same rank.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the actor may not change the schedule.
	ErrForbidden = errors.New("forbidden")

	// ErrInvariant is returned when slot state breaks an engine invariant.
	ErrInvariant = errors.New("invariant violation")

	// ErrRankTaken is returned by stores when an active (slot, slotOrder)
	// pair already exists. The engine retries once before surfacing ErrConflict.
	ErrRankTaken = errors.New("slot rank already taken")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CapacityError reports the slot and its occupancy at the time of the check.
type CapacityError struct {
	Key      SlotKey
	Snapshot Snapshot
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("slot %s is full: %d/%d occupied", e.Key, e.Snapshot.Count, SlotCapacity)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// NotFoundError names the kind of object that is missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError is surfaced after the single internal retry failed.
type ConflictError struct {
	Key   SlotKey
	Cause error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting write on slot %s: %v", e.Key, e.Cause)
}

func (e *ConflictError) Unwrap() []error { return []error{ErrConflict, e.Cause} }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type ForbiddenError struct {
	ActorID    string
	EmployeeID EmployeeID
	Action     string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %q may not %s for employee %s", e.ActorID, e.Action, e.EmployeeID)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// InvariantError aborts a single operation. It always indicates a bug.
type InvariantError struct {
	Key    SlotKey
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated on slot %s: %s", e.Key, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrRankTaken)
}

// IsClientError returns true if the caller can correct the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrCapacity) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func notFound(id AssignmentID) error {
	return &NotFoundError{Kind: "assignment", ID: string(id)}
}
