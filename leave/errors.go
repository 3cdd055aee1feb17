package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrInsufficientBalance is returned when approval would push used past total.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrInvalidTransition is returned for any transition out of a terminal state.
	ErrInvalidTransition = errors.New("invalid leave status transition")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// BalanceError reports the first year whose allocation cannot cover a record.
type BalanceError struct {
	EmployeeID calendar.EmployeeID
	Type       Type
	Year       int
	Requested  decimal.Decimal
	Remaining  decimal.Decimal
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s in %d: requested %s days, remaining %s",
		e.Type, e.EmployeeID, e.Year, e.Requested.String(), e.Remaining.String())
}

func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }

type TransitionError struct {
	ID   RecordID
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("leave %s cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func notFound(id RecordID) error {
	return &calendar.NotFoundError{Kind: "leave", ID: string(id)}
}
