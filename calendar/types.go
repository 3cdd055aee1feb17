/*
Package calendar provides the assignment and capacity engine.

PURPOSE:
  Employees are scheduled into fixed half-day slots (morning / afternoon)
  across weekdays. Each slot holds at most SlotCapacity items, where an item
  is either an active assignment or an approved leave block. This package
  owns the rules that keep that invariant true under concurrent edits.

KEY CONCEPTS IN THIS FILE (types.go):
  - Slot / SlotKey: the (employee, date, slot) cell everything is keyed by
  - Assignment: a unit of work placed on the grid
  - Payload / FieldUpdate: the non-placement fields of an assignment
  - Employee / TaskDisplay: minimal reference data read by the engine

DESIGN PRINCIPLES:
  1. Placement fields (date, slot, slotOrder, layout) are written only by
     AssignmentService.
  2. Layout is derived from (slotOrder, count), never set by a caller.
  3. Deletes are tombstones (IsActive=false) so history survives.
  4. Capacity is enforced under a per-slot lock, not by database isolation.

USAGE:
  svc := &calendar.AssignmentService{Repo: store, Leaves: coordinator, ...}
  a, err := svc.Create(ctx, actor, calendar.CreateInput{
      EmployeeID: "emp-1",
      Date:       calendar.NewDate(2025, time.March, 10),
      Slot:       calendar.SlotMorning,
      Payload:    calendar.Payload{Task: calendar.TaskRef{Title: "Site survey"}},
  })

SEE ALSO:
  - grid.go: date range expansion
  - layout.go: visual partition of a slot
  - capacity.go: capacity snapshots
  - assignment.go: mutating operations
  - view.go: the calendar view contract
*/
package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type TeamID string
type AssignmentID string

// =============================================================================
// SLOT - Half-day period
// =============================================================================

type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
)

// SlotCapacity is the maximum number of items (assignments + leave) a slot holds.
const SlotCapacity = 4

// SlotHours is the working length of one slot.
const SlotHours = 4

// Slots lists every slot of a day in display order.
var Slots = []Slot{SlotMorning, SlotAfternoon}

func (s Slot) Valid() bool { return s == SlotMorning || s == SlotAfternoon }

func (s Slot) rank() int {
	if s == SlotMorning {
		return 0
	}
	return 1
}

// ParseSlot accepts the canonical names plus the AM/PM shorthands.
func ParseSlot(s string) (Slot, error) {
	switch s {
	case "morning", "am", "AM":
		return SlotMorning, nil
	case "afternoon", "pm", "PM":
		return SlotAfternoon, nil
	}
	return "", &ValidationError{Field: "slot", Message: fmt.Sprintf("unknown slot %q", s)}
}

// SlotKey identifies one (employee, date, slot) cell.
type SlotKey struct {
	EmployeeID EmployeeID
	Date       Date
	Slot       Slot
}

// Less orders keys by employee, then date, then slot. Lock acquisition
// follows this order.
func (k SlotKey) Less(o SlotKey) bool {
	if k.EmployeeID != o.EmployeeID {
		return k.EmployeeID < o.EmployeeID
	}
	if c := k.Date.Compare(o.Date); c != 0 {
		return c < 0
	}
	return k.Slot.rank() < o.Slot.rank()
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.EmployeeID, k.Date, k.Slot)
}

// =============================================================================
// PAYLOAD - Non-placement fields
// =============================================================================

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// TaskRef points at reference data. The engine never owns the referenced rows.
type TaskRef struct {
	TaskID     string `json:"task_id,omitempty"`
	Title      string `json:"title"`
	TaskTypeID string `json:"task_type_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
}

type Payload struct {
	Task          TaskRef  `json:"task"`
	Priority      Priority `json:"priority"`
	Status        Status   `json:"status"`
	DueDate       *Date    `json:"due_date,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	DurationHours *int     `json:"duration_hours,omitempty"`
}

// withDefaults fills priority and status when the caller left them blank.
func (p Payload) withDefaults() Payload {
	if p.Priority == "" {
		p.Priority = PriorityNormal
	}
	if p.Status == "" {
		p.Status = StatusTodo
	}
	return p
}

func (p Payload) Validate() error {
	if p.Task.Title == "" {
		return &ValidationError{Field: "task.title", Message: "is required"}
	}
	if !p.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", p.Priority)}
	}
	if !p.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", p.Status)}
	}
	return validateDuration(p.DurationHours)
}

func validateDuration(h *int) error {
	if h != nil && (*h < 1 || *h > SlotHours) {
		return &ValidationError{Field: "duration_hours", Message: fmt.Sprintf("must be between 1 and %d", SlotHours)}
	}
	return nil
}

// FieldUpdate is a partial payload change. Nil pointers leave a field as is.
type FieldUpdate struct {
	Task          *TaskRef  `json:"task,omitempty"`
	Priority      *Priority `json:"priority,omitempty"`
	Status        *Status   `json:"status,omitempty"`
	DueDate       *Date     `json:"due_date,omitempty"`
	ClearDueDate  bool      `json:"clear_due_date,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	DurationHours *int      `json:"duration_hours,omitempty"`
	ClearDuration bool      `json:"clear_duration,omitempty"`
}

func (u FieldUpdate) IsEmpty() bool {
	return u.Task == nil && u.Priority == nil && u.Status == nil && u.DueDate == nil &&
		!u.ClearDueDate && u.Notes == nil && u.DurationHours == nil && !u.ClearDuration
}

// Apply returns p with the update applied and validated.
func (u FieldUpdate) Apply(p Payload) (Payload, error) {
	if u.Task != nil {
		p.Task = *u.Task
	}
	if u.Priority != nil {
		p.Priority = *u.Priority
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.ClearDueDate {
		p.DueDate = nil
	}
	if u.DueDate != nil {
		d := *u.DueDate
		p.DueDate = &d
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	if u.ClearDuration {
		p.DurationHours = nil
	}
	if u.DurationHours != nil {
		h := *u.DurationHours
		p.DurationHours = &h
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// =============================================================================
// ASSIGNMENT - A unit of work placed on the grid
// =============================================================================

type Assignment struct {
	ID         AssignmentID `json:"id"`
	EmployeeID EmployeeID   `json:"employee_id"`
	Date       Date         `json:"date"`
	Slot       Slot         `json:"slot"`
	SlotOrder  int          `json:"slot_order"`
	Layout     Layout       `json:"layout"`
	Payload

	IsActive  bool       `json:"is_active"`
	CreatedBy string     `json:"created_by,omitempty"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (a Assignment) Key() SlotKey {
	return SlotKey{EmployeeID: a.EmployeeID, Date: a.Date, Slot: a.Slot}
}

// Hours is the explicit duration when set, otherwise the share of the slot
// the layout gives this item.
func (a Assignment) Hours() int {
	if a.DurationHours != nil {
		return *a.DurationHours
	}
	return a.Layout.Hours()
}

// =============================================================================
// REFERENCE DATA - Minimal fields read by the engine
// =============================================================================

type Employee struct {
	ID     EmployeeID `json:"id"`
	Name   string     `json:"name"`
	TeamID TeamID     `json:"team_id"`
	Active bool       `json:"active"`
}

// TaskDisplay carries the names and colors a view shows next to a TaskRef.
type TaskDisplay struct {
	TaskTypeName string `json:"task_type_name,omitempty"`
	ProjectName  string `json:"project_name,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	Color        string `json:"color,omitempty"`
}

// RefKind names a reference table a TaskRef points into.
type RefKind string

const (
	RefClient   RefKind = "client"
	RefProject  RefKind = "project"
	RefTaskType RefKind = "task_type"
)

// Reference is one row of reference data. Stores keep them so a Catalog
// can resolve display fields; managing them is not the engine's job.
type Reference struct {
	Kind  RefKind `json:"kind"`
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color string  `json:"color,omitempty"`
}

// ResolveDisplay builds the display fields of ref from a lookup. The most
// specific color wins: task type, then project, then client.
func ResolveDisplay(ref TaskRef, lookup func(kind RefKind, id string) (Reference, bool)) TaskDisplay {
	var d TaskDisplay
	var colors [3]string
	if r, ok := lookup(RefTaskType, ref.TaskTypeID); ok && ref.TaskTypeID != "" {
		d.TaskTypeName, colors[0] = r.Name, r.Color
	}
	if r, ok := lookup(RefProject, ref.ProjectID); ok && ref.ProjectID != "" {
		d.ProjectName, colors[1] = r.Name, r.Color
	}
	if r, ok := lookup(RefClient, ref.ClientID); ok && ref.ClientID != "" {
		d.ClientName, colors[2] = r.Name, r.Color
	}
	for _, c := range colors {
		if c != "" {
			d.Color = c
			break
		}
	}
	return d
}
