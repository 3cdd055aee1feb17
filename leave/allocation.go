package leave

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// ALLOCATION - Yearly leave balance of one employee
// =============================================================================

type Balance struct {
	Total decimal.Decimal `json:"total"`
	Used  decimal.Decimal `json:"used"`
}

// Remaining never goes below zero.
func (b Balance) Remaining() decimal.Decimal {
	r := b.Total.Sub(b.Used)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

type Allocation struct {
	EmployeeID calendar.EmployeeID `json:"employee_id"`
	Year       int                 `json:"year"`
	Annual     Balance             `json:"annual"`
	Sick       Balance             `json:"sick"`
	Other      Balance             `json:"other"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// For returns the balance bucket of a leave type, or nil for unknown types.
func (a *Allocation) For(t Type) *Balance {
	switch t {
	case TypeAnnual:
		return &a.Annual
	case TypeSick:
		return &a.Sick
	case TypeOther:
		return &a.Other
	}
	return nil
}

func (a Allocation) Validate() error {
	if a.EmployeeID == "" {
		return &calendar.ValidationError{Field: "employee_id", Message: "is required"}
	}
	if a.Year < 1970 || a.Year > 9999 {
		return &calendar.ValidationError{Field: "year", Message: "is out of range"}
	}
	for _, t := range Types {
		b := a.For(t)
		if b.Total.IsNegative() || b.Used.IsNegative() {
			return &calendar.ValidationError{Field: string(t), Message: "days must not be negative"}
		}
	}
	return nil
}

// =============================================================================
// TEMPLATE - Default totals for newly seeded allocations
// =============================================================================

type Template struct {
	Annual decimal.Decimal `json:"annual"`
	Sick   decimal.Decimal `json:"sick"`
	Other  decimal.Decimal `json:"other"`
}

// DefaultTemplate is used when no template source is configured.
var DefaultTemplate = Template{
	Annual: decimal.NewFromInt(25),
	Sick:   decimal.NewFromInt(10),
	Other:  decimal.NewFromInt(5),
}

// TemplateSource picks the template for an employee. factory.Templates
// implements per-team overrides.
type TemplateSource interface {
	TemplateFor(emp calendar.Employee) Template
}

// TemplateFor makes a single Template usable as a TemplateSource.
func (t Template) TemplateFor(calendar.Employee) Template { return t }

// Allocation returns a fresh, unused allocation built from the template.
func (t Template) Allocation(emp calendar.EmployeeID, year int, now time.Time) Allocation {
	return Allocation{
		EmployeeID: emp,
		Year:       year,
		Annual:     Balance{Total: t.Annual, Used: decimal.Zero},
		Sick:       Balance{Total: t.Sick, Used: decimal.Zero},
		Other:      Balance{Total: t.Other, Used: decimal.Zero},
		UpdatedAt:  now,
	}
}
