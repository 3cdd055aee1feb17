/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validator tags for shape checks (required fields, enums, date format);
  business rules stay in the calendar and leave packages.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Assignments:
    CreateAssignmentRequest, MoveAssignmentRequest, ReorderRequest,
    BulkUpdateRequest, BulkUpdateResponse, CapacityDTO

  Leave:
    SubmitLeaveRequest, ReviewLeaveRequest, SetAllocationRequest

  Reference data:
    CreateEmployeeRequest, CreateReferenceRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

DATES:
  Dates travel as "YYYY-MM-DD" strings and are parsed by the handler after
  validation.

SEE ALSO:
  - handlers.go: Uses these types
  - calendar/types.go: Assignment and FieldUpdate are returned as-is
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// CreateAssignmentRequest is the request to place a new assignment.
type CreateAssignmentRequest struct {
	EmployeeID    string           `json:"employee_id" validate:"required"`
	Date          string           `json:"date" validate:"required,datetime=2006-01-02"`
	Slot          string           `json:"slot" validate:"required,oneof=morning afternoon am pm AM PM"`
	Task          calendar.TaskRef `json:"task"`
	Priority      string           `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Status        string           `json:"status" validate:"omitempty,oneof=todo in_progress blocked done"`
	DueDate       string           `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes         string           `json:"notes,omitempty" validate:"max=4000"`
	DurationHours *int             `json:"duration_hours,omitempty" validate:"omitempty,min=1,max=4"`
	AllowOverbook bool             `json:"allow_overbook,omitempty"`
}

// MoveAssignmentRequest is the request to move an assignment to another slot.
type MoveAssignmentRequest struct {
	EmployeeID    string `json:"employee_id" validate:"required"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Slot          string `json:"slot" validate:"required,oneof=morning afternoon am pm AM PM"`
	AllowOverbook bool   `json:"allow_overbook,omitempty"`
}

// ReorderRequest moves an assignment to a rank within its slot.
type ReorderRequest struct {
	Rank *int `json:"rank" validate:"required,min=0"`
}

// BulkUpdateRequest applies one field update to many assignments.
type BulkUpdateRequest struct {
	IDs    []string             `json:"ids" validate:"required,min=1,dive,required"`
	Update calendar.FieldUpdate `json:"update"`
}

type BatchFailureDTO struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type BulkUpdateResponse struct {
	Updated []calendar.Assignment `json:"updated"`
	Failed  []BatchFailureDTO     `json:"failed"`
}

// CapacityDTO is the occupancy of one slot.
type CapacityDTO struct {
	EmployeeID string        `json:"employee_id"`
	Date       calendar.Date `json:"date"`
	Slot       calendar.Slot `json:"slot"`
	calendar.Snapshot
}

// =============================================================================
// LEAVE
// =============================================================================

// SubmitLeaveRequest is the request to record a leave request.
type SubmitLeaveRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Type       string `json:"type" validate:"required,oneof=annual sick other"`
	Hours      int    `json:"hours,omitempty" validate:"omitempty,oneof=4 8"`
	Slot       string `json:"slot,omitempty" validate:"omitempty,oneof=morning afternoon am pm AM PM"`
	Reason     string `json:"reason,omitempty" validate:"max=1000"`
}

// ReviewLeaveRequest carries an optional reviewer note.
type ReviewLeaveRequest struct {
	Note string `json:"note,omitempty" validate:"max=1000"`
}

// SetAllocationRequest overwrites the yearly totals. Used days never change.
type SetAllocationRequest struct {
	Annual decimal.Decimal `json:"annual"`
	Sick   decimal.Decimal `json:"sick"`
	Other  decimal.Decimal `json:"other"`
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	TeamID string `json:"team_id"`
	Active *bool  `json:"active,omitempty"`
}

// CreateReferenceRequest creates a client, project or task type.
type CreateReferenceRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=client project task_type"`
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Color string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
