package leave

import (
	"context"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// REPOSITORY - Leave persistence
// =============================================================================

// Filter selects records overlapping [From, To]. Zero bounds are open.
type Filter struct {
	EmployeeIDs     []calendar.EmployeeID
	From            calendar.Date
	To              calendar.Date
	Status          Status
	IncludeInactive bool
}

// Match applies the filter to one record. Stores that cannot express a
// condition in their query language use it as a final pass.
func (f Filter) Match(r Record) bool {
	if !f.IncludeInactive && !r.IsActive {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && r.To.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.From.After(f.To) {
		return false
	}
	if len(f.EmployeeIDs) == 0 {
		return true
	}
	for _, id := range f.EmployeeIDs {
		if id == r.EmployeeID {
			return true
		}
	}
	return false
}

type Repository interface {
	// GetLeave returns the record including soft-deleted ones, or a
	// calendar.NotFoundError.
	GetLeave(ctx context.Context, id RecordID) (*Record, error)
	SaveLeave(ctx context.Context, r Record) error

	// ListLeaves returns matching records ordered by employee, then From.
	ListLeaves(ctx context.Context, f Filter) ([]Record, error)

	// GetAllocation returns a calendar.NotFoundError when none exists yet.
	GetAllocation(ctx context.Context, emp calendar.EmployeeID, year int) (*Allocation, error)
	SaveAllocation(ctx context.Context, a Allocation) error
	ListAllocations(ctx context.Context, year int) ([]Allocation, error)
}

// TxRepository commits record and allocation changes together.
type TxRepository interface {
	Repository
	WithLeaveTx(ctx context.Context, fn func(Repository) error) error
}
