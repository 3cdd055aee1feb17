/*
Package leave manages absence requests and yearly leave allocations.

PURPOSE:
  A leave record blocks calendar capacity once approved. The coordinator
  is the only writer of records and allocations; the calendar engine reads
  leave through calendar.LeaveSource.

LIFECYCLE:
  ┌─────────────────────────────────────────────────────────────┐
  │                                                             │
  │   Submit ──▶ Pending ──┬──▶ Approved ──▶ (Delete: used -=)  │
  │                        │                                    │
  │                        └──▶ Rejected                        │
  │                                                             │
  └─────────────────────────────────────────────────────────────┘

  Approved and Rejected are terminal. An approved record is corrected by
  deleting it and submitting a new one, so the audit trail survives.

UNITS:
  Hours per covered weekday: 8 (full day, both slots) or 4 (half day,
  exactly one slot of one date). Balances are kept in days as decimals,
  so a half day is exactly 0.5.

SEE ALSO:
  - coordinator.go: state transitions, capacity and balance checks
  - allocation.go: yearly balances and templates
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type Type string

const (
	TypeAnnual Type = "annual"
	TypeSick   Type = "sick"
	TypeOther  Type = "other"
)

// Types lists every leave type in display order.
var Types = []Type{TypeAnnual, TypeSick, TypeOther}

func (t Type) Valid() bool {
	switch t {
	case TypeAnnual, TypeSick, TypeOther:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

const (
	FullDayHours = 8
	HalfDayHours = calendar.SlotHours
)

var hoursPerDay = decimal.NewFromInt(FullDayHours)

// =============================================================================
// RECORD
// =============================================================================

type RecordID string

type Record struct {
	ID         RecordID            `json:"id"`
	EmployeeID calendar.EmployeeID `json:"employee_id"`
	From       calendar.Date       `json:"from"`
	To         calendar.Date       `json:"to"`
	Type       Type                `json:"type"`
	Hours      int                 `json:"hours"`
	Slot       calendar.Slot       `json:"slot,omitempty"`
	Status     Status              `json:"status"`
	Reason     string              `json:"reason,omitempty"`

	// Set at submission when the request already exceeded the balance.
	// Submission is never blocked by it; approval is.
	ExceedsBalance bool `json:"exceeds_balance"`

	RequestedBy string     `json:"requested_by,omitempty"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewNote  string     `json:"review_note,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (r Record) HalfDay() bool { return r.Hours == HalfDayHours }

// Keys returns every slot the record covers, in lock order.
func (r Record) Keys() []calendar.SlotKey {
	if r.HalfDay() {
		if r.From.IsWeekend() {
			return nil
		}
		return []calendar.SlotKey{{EmployeeID: r.EmployeeID, Date: r.From, Slot: r.Slot}}
	}
	var keys []calendar.SlotKey
	for _, d := range calendar.Workdays(r.From, r.To) {
		for _, s := range calendar.Slots {
			keys = append(keys, calendar.SlotKey{EmployeeID: r.EmployeeID, Date: d, Slot: s})
		}
	}
	return keys
}

// Covers reports whether the record blocks key.
func (r Record) Covers(key calendar.SlotKey) bool {
	if key.EmployeeID != r.EmployeeID || key.Date.IsWeekend() {
		return false
	}
	if key.Date.Before(r.From) || key.Date.After(r.To) {
		return false
	}
	return !r.HalfDay() || key.Slot == r.Slot
}

// Overlaps reports whether the two records block at least one common slot.
func (r Record) Overlaps(o Record) bool {
	if r.EmployeeID != o.EmployeeID || r.To.Before(o.From) || o.To.Before(r.From) {
		return false
	}
	for _, k := range r.Keys() {
		if o.Covers(k) {
			return true
		}
	}
	return false
}

// DaysByYear is the balance cost of the record split by calendar year.
// Only weekdays count.
func (r Record) DaysByYear() map[int]decimal.Decimal {
	perDay := decimal.NewFromInt(int64(r.Hours)).Div(hoursPerDay)
	out := make(map[int]decimal.Decimal)
	for _, d := range calendar.Workdays(r.From, r.To) {
		out[d.Year] = out[d.Year].Add(perDay)
	}
	return out
}

// Validate checks the shape of a record before it is stored.
func (r Record) Validate() error {
	if r.EmployeeID == "" {
		return &calendar.ValidationError{Field: "employee_id", Message: "is required"}
	}
	if !r.Type.Valid() {
		return &calendar.ValidationError{Field: "type", Message: fmt.Sprintf("unknown leave type %q", r.Type)}
	}
	if r.From.IsZero() || r.To.IsZero() {
		return &calendar.ValidationError{Field: "from", Message: "date range is required"}
	}
	if r.To.Before(r.From) {
		return &calendar.ValidationError{Field: "to", Message: "must not be before from"}
	}
	if r.From.AddDays(maxRangeDays).Before(r.To) {
		return &calendar.ValidationError{Field: "to", Message: fmt.Sprintf("range longer than %d days", maxRangeDays)}
	}

	switch r.Hours {
	case FullDayHours:
		if r.Slot != "" {
			return &calendar.ValidationError{Field: "slot", Message: "only half-day leave names a slot"}
		}
	case HalfDayHours:
		if !r.Slot.Valid() {
			return &calendar.ValidationError{Field: "slot", Message: "half-day leave requires a slot"}
		}
		if r.From != r.To {
			return &calendar.ValidationError{Field: "to", Message: "half-day leave covers a single date"}
		}
	default:
		return &calendar.ValidationError{Field: "hours", Message: fmt.Sprintf("must be %d or %d", FullDayHours, HalfDayHours)}
	}

	if len(calendar.Workdays(r.From, r.To)) == 0 {
		return &calendar.ValidationError{Field: "from", Message: "range contains no weekdays"}
	}
	return nil
}

const maxRangeDays = 366
