/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the seams between the engine and everything it does not own:
  assignment persistence, leave occupancy, the employee directory and the
  task reference catalog.

KEY INTERFACES:
  Repository:   Assignment reads and writes
  TxRepository: Repository with atomic multi-row commits
  LeaveSource:  Leave blocks per slot (implemented by leave.Coordinator)
  Directory:    Employees and their teams
  Catalog:      Display names and colors for task references

ACTIVE-ONLY READS:
  SlotAssignments and AssignmentsInRange only return active rows.
  GetAssignment returns inactive rows too so callers can tell "deleted"
  from "never existed"; the engine treats both as not found.

RANK UNIQUENESS:
  Stores must reject two active assignments sharing (slot, slotOrder) with
  ErrRankTaken. Within one SaveAssignments call, rows are written so that
  reshuffling ranks of the same slot never trips that check.

IMPLEMENTATIONS:
  - store/memory:   in-memory, snapshot + rollback transactions
  - store/sqlite:   SQLite
  - store/postgres: PostgreSQL through pgx

SEE ALSO:
  - assignment.go: the only writer of placement fields
*/
package calendar

import "context"

// =============================================================================
// REPOSITORY - Assignment persistence
// =============================================================================

type Repository interface {
	// GetAssignment returns the assignment including tombstones, or a
	// NotFoundError when the id never existed.
	GetAssignment(ctx context.Context, id AssignmentID) (*Assignment, error)

	// SlotAssignments returns active assignments of one slot ordered by SlotOrder.
	SlotAssignments(ctx context.Context, key SlotKey) ([]Assignment, error)

	// AssignmentsInRange returns active assignments for the employees in
	// [from, to], ordered by employee, date, slot, slotOrder.
	AssignmentsInRange(ctx context.Context, employeeIDs []EmployeeID, from, to Date) ([]Assignment, error)

	// SaveAssignments upserts rows. Returns ErrRankTaken on rank collisions.
	SaveAssignments(ctx context.Context, assignments ...Assignment) error
}

// TxRepository wraps Repository with transaction support.
// If fn returns an error every write inside it is rolled back.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// =============================================================================
// LEAVE SOURCE - Leave occupancy read by the capacity ledger
// =============================================================================

// LeaveMark is one leave record covering one slot.
type LeaveMark struct {
	Key      SlotKey `json:"-"`
	RecordID string  `json:"record_id"`
	Type     string  `json:"type"`
	Approved bool    `json:"approved"`
	HalfDay  bool    `json:"half_day"`
}

type LeaveSource interface {
	// LeaveMarks returns pending and approved marks for the employees in
	// [from, to]. Only approved marks consume capacity.
	LeaveMarks(ctx context.Context, employeeIDs []EmployeeID, from, to Date) ([]LeaveMark, error)
}

// NoLeave is a LeaveSource without any leave.
type NoLeave struct{}

func (NoLeave) LeaveMarks(context.Context, []EmployeeID, Date, Date) ([]LeaveMark, error) {
	return nil, nil
}

// =============================================================================
// REFERENCE DATA - Read-only collaborators
// =============================================================================

type Directory interface {
	// GetEmployee returns a NotFoundError for unknown ids.
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// ListEmployees returns active employees visible in scope, ordered by name.
	ListEmployees(ctx context.Context, scope Scope) ([]Employee, error)
}

type Catalog interface {
	// ResolveTasks returns display fields keyed by TaskRef. Unknown
	// references are simply absent from the result.
	ResolveTasks(ctx context.Context, refs []TaskRef) (map[TaskRef]TaskDisplay, error)
}

// NoCatalog resolves nothing.
type NoCatalog struct{}

func (NoCatalog) ResolveTasks(context.Context, []TaskRef) (map[TaskRef]TaskDisplay, error) {
	return nil, nil
}
