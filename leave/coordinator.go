/*
coordinator.go - Leave state machine against slot capacity and balances

PURPOSE:
  Coordinator is the sole writer of leave records and allocations. It turns
  approved leave into capacity blocks that the calendar engine reads through
  LeaveMarks.

APPROVAL FLOW:
  ┌───────────────────────────────────────────────────────────────────┐
  │                                                                   │
  │  reviewer   ──▶  lock covered slots  ──▶  every slot < 4 items?   │
  │  allowed?        + allocation key         (else CapacityError)    │
  │                                                  │                │
  │                                                  ▼                │
  │  publish   ◀──  used += days,  ◀──  balance per year  ◀── overlap │
  │  event          status=approved      (else BalanceError)    check │
  │                                                                   │
  └───────────────────────────────────────────────────────────────────┘

LOCKING:
  Leave shares calendar.SlotLocks with the assignment service, so an
  approval and a concurrent create on the same slot are serialized and
  never reach 4 items plus leave. Allocation updates of one employee are
  serialized through allocationKey, which sorts before every slot of that
  employee.

BALANCES:
  Submission only flags ExceedsBalance. Approval re-checks every calendar
  year the record touches and fails as a whole.

SEE ALSO:
  - calendar/assignment.go: the same lock, check, commit, publish pipeline
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	Repo        TxRepository
	Assignments calendar.Repository
	Directory   calendar.Directory
	Authorizer  calendar.Authorizer
	Notifier    calendar.Notifier
	Locks       *calendar.SlotLocks
	Templates   TemplateSource
	Logger      *zap.Logger

	Now   func() time.Time
	NewID func() RecordID

	initOnce sync.Once
}

var _ calendar.LeaveSource = (*Coordinator)(nil)

type SubmitInput struct {
	EmployeeID calendar.EmployeeID
	From       calendar.Date
	To         calendar.Date
	Type       Type
	Hours      int
	Slot       calendar.Slot
	Reason     string
}

func (c *Coordinator) init() {
	c.initOnce.Do(func() {
		if c.Locks == nil {
			c.Locks = calendar.NewSlotLocks()
		}
		if c.Logger == nil {
			c.Logger = zap.NewNop()
		}
		if c.Notifier == nil {
			c.Notifier = calendar.NopNotifier{}
		}
		if c.Authorizer == nil {
			c.Authorizer = calendar.RoleAuthorizer{}
		}
		if c.Templates == nil {
			c.Templates = DefaultTemplate
		}
		if c.Now == nil {
			c.Now = time.Now
		}
		if c.NewID == nil {
			c.NewID = func() RecordID { return RecordID(uuid.NewString()) }
		}
	})
}

// allocationKey is the lock key guarding an employee's allocations.
func allocationKey(emp calendar.EmployeeID) calendar.SlotKey {
	return calendar.SlotKey{EmployeeID: emp}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit stores a pending record. It never consumes capacity or balance.
func (c *Coordinator) Submit(ctx context.Context, actor calendar.Actor, in SubmitInput) (*Record, error) {
	c.init()

	if in.Hours == 0 {
		in.Hours = FullDayHours
	}
	now := c.Now().UTC()
	rec := Record{
		ID:          c.NewID(),
		EmployeeID:  in.EmployeeID,
		From:        in.From,
		To:          in.To,
		Type:        in.Type,
		Hours:       in.Hours,
		Slot:        in.Slot,
		Status:      StatusPending,
		Reason:      in.Reason,
		RequestedBy: actor.ID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rec.HalfDay() && rec.To.IsZero() {
		rec.To = rec.From
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	emp, err := c.activeEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !c.Authorizer.CanMutate(ctx, actor, *emp) {
		return nil, &calendar.ForbiddenError{ActorID: actor.ID, EmployeeID: emp.ID, Action: "submit leave"}
	}

	unlock := c.Locks.Lock(allocationKey(emp.ID))
	defer unlock()

	cctx := context.WithoutCancel(ctx)
	err = c.Repo.WithLeaveTx(cctx, func(tx Repository) error {
		for year, days := range rec.DaysByYear() {
			alloc, err := c.allocation(cctx, tx, *emp, year)
			if err != nil {
				return err
			}
			if alloc.For(rec.Type).Remaining().LessThan(days) {
				rec.ExceedsBalance = true
			}
		}
		return tx.SaveLeave(cctx, rec)
	})
	if err != nil {
		return nil, err
	}

	c.Logger.Info("leave submitted",
		zap.String("leave_id", string(rec.ID)),
		zap.String("employee_id", string(rec.EmployeeID)),
		zap.String("type", string(rec.Type)),
		zap.Bool("exceeds_balance", rec.ExceedsBalance))

	c.publish(calendar.EventLeaveSubmitted, rec, *emp, actor, now)
	return &rec, nil
}

// =============================================================================
// APPROVE
// =============================================================================

// Approve turns a pending record into a capacity block and charges the
// allocation. Nothing changes when any check fails.
func (c *Coordinator) Approve(ctx context.Context, reviewer calendar.Actor, id RecordID) (*Record, error) {
	c.init()

	rec, emp, err := c.reviewable(ctx, reviewer, id, "approve leave")
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, &calendar.NotFoundError{Kind: "employee", ID: string(emp.ID)}
	}
	if rec.Status != StatusPending {
		return nil, &TransitionError{ID: id, From: rec.Status, To: StatusApproved}
	}

	keys := rec.Keys()
	unlock := c.Locks.Lock(append(keys, allocationKey(emp.ID))...)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, key := range keys {
		items, err := c.Assignments.SlotAssignments(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read slot %s: %w", key, err)
		}
		if len(items) >= calendar.SlotCapacity {
			return nil, &calendar.CapacityError{Key: key, Snapshot: calendar.NewSnapshot(key, len(items), true)}
		}
	}

	now := c.Now().UTC()
	var approved Record

	cctx := context.WithoutCancel(ctx)
	err = c.Repo.WithLeaveTx(cctx, func(tx Repository) error {
		cur, err := activeRecord(cctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != StatusPending {
			return &TransitionError{ID: id, From: cur.Status, To: StatusApproved}
		}

		others, err := tx.ListLeaves(cctx, Filter{
			EmployeeIDs: []calendar.EmployeeID{cur.EmployeeID},
			From:        cur.From,
			To:          cur.To,
			Status:      StatusApproved,
		})
		if err != nil {
			return err
		}
		for _, o := range others {
			if o.ID != cur.ID && cur.Overlaps(o) {
				return &calendar.ValidationError{Field: "from", Message: fmt.Sprintf("overlaps approved leave %s", o.ID)}
			}
		}

		if err := c.charge(cctx, tx, *emp, *cur, now); err != nil {
			return err
		}

		cur.Status = StatusApproved
		cur.ReviewedBy = reviewer.ID
		cur.ReviewedAt = &now
		cur.UpdatedAt = now
		approved = *cur
		return tx.SaveLeave(cctx, *cur)
	})
	if err != nil {
		return nil, err
	}

	c.Logger.Info("leave approved",
		zap.String("leave_id", string(id)),
		zap.String("employee_id", string(emp.ID)),
		zap.String("reviewer", reviewer.ID),
		zap.Int("slots", len(keys)))

	c.publish(calendar.EventLeaveApproved, approved, *emp, reviewer, now)
	return &approved, nil
}

// charge checks every year first, then increments used. A failure in any
// year leaves all allocations untouched.
func (c *Coordinator) charge(ctx context.Context, tx Repository, emp calendar.Employee, rec Record, now time.Time) error {
	byYear := rec.DaysByYear()
	years := sortedYears(byYear)

	allocs := make([]*Allocation, len(years))
	for i, year := range years {
		alloc, err := c.allocation(ctx, tx, emp, year)
		if err != nil {
			return err
		}
		bal := alloc.For(rec.Type)
		if bal.Total.Sub(bal.Used).LessThan(byYear[year]) {
			return &BalanceError{
				EmployeeID: emp.ID,
				Type:       rec.Type,
				Year:       year,
				Requested:  byYear[year],
				Remaining:  bal.Remaining(),
			}
		}
		allocs[i] = alloc
	}

	for i, alloc := range allocs {
		bal := alloc.For(rec.Type)
		bal.Used = bal.Used.Add(byYear[years[i]])
		alloc.UpdatedAt = now
		if err := tx.SaveAllocation(ctx, *alloc); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// REJECT / DELETE
// =============================================================================

// Reject closes a pending record. No balance effect.
func (c *Coordinator) Reject(ctx context.Context, reviewer calendar.Actor, id RecordID, note string) (*Record, error) {
	c.init()

	rec, emp, err := c.reviewable(ctx, reviewer, id, "reject leave")
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPending {
		return nil, &TransitionError{ID: id, From: rec.Status, To: StatusRejected}
	}

	unlock := c.Locks.Lock(rec.Keys()...)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := c.Now().UTC()
	var rejected Record

	cctx := context.WithoutCancel(ctx)
	err = c.Repo.WithLeaveTx(cctx, func(tx Repository) error {
		cur, err := activeRecord(cctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != StatusPending {
			return &TransitionError{ID: id, From: cur.Status, To: StatusRejected}
		}
		cur.Status = StatusRejected
		cur.ReviewedBy = reviewer.ID
		cur.ReviewNote = note
		cur.ReviewedAt = &now
		cur.UpdatedAt = now
		rejected = *cur
		return tx.SaveLeave(cctx, *cur)
	})
	if err != nil {
		return nil, err
	}

	c.publish(calendar.EventLeaveRejected, rejected, *emp, reviewer, now)
	return &rejected, nil
}

// Delete soft-deletes a record. Deleting an approved record refunds the
// days it charged and frees its slots.
func (c *Coordinator) Delete(ctx context.Context, actor calendar.Actor, id RecordID) error {
	c.init()

	rec, err := activeRecord(ctx, c.Repo, id)
	if err != nil {
		return err
	}
	emp, err := c.employee(ctx, rec.EmployeeID)
	if err != nil {
		return err
	}
	canReview := c.Authorizer.CanReview(ctx, actor, *emp)
	if !canReview && !c.Authorizer.CanMutate(ctx, actor, *emp) {
		return &calendar.ForbiddenError{ActorID: actor.ID, EmployeeID: emp.ID, Action: "delete leave"}
	}
	if rec.Status == StatusApproved && !canReview {
		return &calendar.ForbiddenError{ActorID: actor.ID, EmployeeID: emp.ID, Action: "delete approved leave"}
	}

	unlock := c.Locks.Lock(append(rec.Keys(), allocationKey(emp.ID))...)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	now := c.Now().UTC()
	var deleted Record

	cctx := context.WithoutCancel(ctx)
	err = c.Repo.WithLeaveTx(cctx, func(tx Repository) error {
		cur, err := activeRecord(cctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status == StatusApproved {
			if err := c.refund(cctx, tx, *emp, *cur, now); err != nil {
				return err
			}
		}
		cur.IsActive = false
		cur.DeletedAt = &now
		cur.UpdatedAt = now
		deleted = *cur
		return tx.SaveLeave(cctx, *cur)
	})
	if err != nil {
		return err
	}

	c.publish(calendar.EventLeaveDeleted, deleted, *emp, actor, now)
	return nil
}

func (c *Coordinator) refund(ctx context.Context, tx Repository, emp calendar.Employee, rec Record, now time.Time) error {
	byYear := rec.DaysByYear()
	for _, year := range sortedYears(byYear) {
		alloc, err := c.allocation(ctx, tx, emp, year)
		if err != nil {
			return err
		}
		bal := alloc.For(rec.Type)
		bal.Used = bal.Used.Sub(byYear[year])
		if bal.Used.IsNegative() {
			c.Logger.Error("leave refund exceeds used days, clamping to zero",
				zap.String("leave_id", string(rec.ID)),
				zap.String("employee_id", string(emp.ID)),
				zap.Int("year", year))
			bal.Used = decimal.Zero
		}
		alloc.UpdatedAt = now
		if err := tx.SaveAllocation(ctx, *alloc); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (c *Coordinator) Get(ctx context.Context, id RecordID) (*Record, error) {
	return activeRecord(ctx, c.Repo, id)
}

func (c *Coordinator) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &calendar.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", f.Status)}
	}
	return c.Repo.ListLeaves(ctx, f)
}

// LeaveMarks implements calendar.LeaveSource. Rejected and deleted records
// produce no marks.
func (c *Coordinator) LeaveMarks(ctx context.Context, ids []calendar.EmployeeID, from, to calendar.Date) ([]calendar.LeaveMark, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := c.Repo.ListLeaves(ctx, Filter{EmployeeIDs: ids, From: from, To: to})
	if err != nil {
		return nil, err
	}

	var marks []calendar.LeaveMark
	for _, r := range records {
		if r.Status == StatusRejected {
			continue
		}
		for _, key := range r.Keys() {
			if key.Date.Before(from) || key.Date.After(to) {
				continue
			}
			marks = append(marks, calendar.LeaveMark{
				Key:      key,
				RecordID: string(r.ID),
				Type:     string(r.Type),
				Approved: r.Status == StatusApproved,
				HalfDay:  r.HalfDay(),
			})
		}
	}
	return marks, nil
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

// Allocation returns the employee's allocation for year, seeding it from
// the template on first access. Only actors who may mutate or review the
// employee's schedule can read it.
func (c *Coordinator) Allocation(ctx context.Context, actor calendar.Actor, id calendar.EmployeeID, year int) (*Allocation, error) {
	c.init()

	emp, err := c.activeEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Authorizer.CanMutate(ctx, actor, *emp) && !c.Authorizer.CanReview(ctx, actor, *emp) {
		return nil, &calendar.ForbiddenError{ActorID: actor.ID, EmployeeID: emp.ID, Action: "read allocations"}
	}
	return c.seed(ctx, *emp, year)
}

// seed returns the stored allocation or creates it from the template.
func (c *Coordinator) seed(ctx context.Context, emp calendar.Employee, year int) (*Allocation, error) {
	existing, err := c.Repo.GetAllocation(ctx, emp.ID, year)
	if err == nil {
		return existing, nil
	}
	if !calendar.IsNotFound(err) {
		return nil, err
	}

	unlock := c.Locks.Lock(allocationKey(emp.ID))
	defer unlock()

	var alloc *Allocation
	cctx := context.WithoutCancel(ctx)
	err = c.Repo.WithLeaveTx(cctx, func(tx Repository) error {
		var err error
		alloc, err = c.allocation(cctx, tx, emp, year)
		return err
	})
	return alloc, err
}

// SetAllocation overwrites totals. Used days stay as recorded so that
// approved leave keeps its charge, and no total may drop below them.
func (c *Coordinator) SetAllocation(ctx context.Context, actor calendar.Actor, a Allocation) (*Allocation, error) {
	c.init()

	if err := a.Validate(); err != nil {
		return nil, err
	}
	emp, err := c.activeEmployee(ctx, a.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !c.Authorizer.CanReview(ctx, actor, *emp) {
		return nil, &calendar.ForbiddenError{ActorID: actor.ID, EmployeeID: emp.ID, Action: "set allocations"}
	}

	unlock := c.Locks.Lock(allocationKey(emp.ID))
	defer unlock()

	now := c.Now().UTC()
	var saved Allocation

	cctx := context.WithoutCancel(ctx)
	err = c.Repo.WithLeaveTx(cctx, func(tx Repository) error {
		cur, err := c.allocation(cctx, tx, *emp, a.Year)
		if err != nil {
			return err
		}
		for _, t := range Types {
			total, used := a.For(t).Total, cur.For(t).Used
			if total.LessThan(used) {
				return &calendar.ValidationError{
					Field:   string(t),
					Message: fmt.Sprintf("total %s is below the %s days already used", total, used),
				}
			}
		}
		for _, t := range Types {
			cur.For(t).Total = a.For(t).Total
		}
		cur.UpdatedAt = now
		saved = *cur
		return tx.SaveAllocation(cctx, *cur)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// EnsureAllocations seeds the allocation of year for every active employee
// that has none. Returns how many were created.
func (c *Coordinator) EnsureAllocations(ctx context.Context, year int) (int, error) {
	c.init()

	employees, err := c.Directory.ListEmployees(ctx, calendar.GlobalScope())
	if err != nil {
		return 0, fmt.Errorf("failed to list employees: %w", err)
	}

	created := 0
	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		_, err := c.Repo.GetAllocation(ctx, emp.ID, year)
		if err == nil {
			continue
		}
		if !calendar.IsNotFound(err) {
			return created, err
		}
		if _, err := c.seed(ctx, emp, year); err != nil {
			return created, err
		}
		created++
	}

	c.Logger.Info("allocations ensured", zap.Int("year", year), zap.Int("created", created), zap.Int("employees", len(employees)))
	return created, nil
}

// allocation loads or seeds an allocation inside a transaction.
func (c *Coordinator) allocation(ctx context.Context, tx Repository, emp calendar.Employee, year int) (*Allocation, error) {
	alloc, err := tx.GetAllocation(ctx, emp.ID, year)
	if err == nil {
		return alloc, nil
	}
	if !calendar.IsNotFound(err) {
		return nil, err
	}
	seeded := c.Templates.TemplateFor(emp).Allocation(emp.ID, year, c.Now().UTC())
	if err := tx.SaveAllocation(ctx, seeded); err != nil {
		return nil, err
	}
	return &seeded, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Coordinator) employee(ctx context.Context, id calendar.EmployeeID) (*calendar.Employee, error) {
	if c.Directory == nil {
		return nil, errors.New("leave coordinator has no directory")
	}
	return c.Directory.GetEmployee(ctx, id)
}

// activeEmployee is employee for write paths. Deactivated employees read
// as missing.
func (c *Coordinator) activeEmployee(ctx context.Context, id calendar.EmployeeID) (*calendar.Employee, error) {
	emp, err := c.employee(ctx, id)
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, &calendar.NotFoundError{Kind: "employee", ID: string(id)}
	}
	return emp, nil
}

func (c *Coordinator) reviewable(ctx context.Context, reviewer calendar.Actor, id RecordID, action string) (*Record, *calendar.Employee, error) {
	rec, err := activeRecord(ctx, c.Repo, id)
	if err != nil {
		return nil, nil, err
	}
	emp, err := c.employee(ctx, rec.EmployeeID)
	if err != nil {
		return nil, nil, err
	}
	if !c.Authorizer.CanReview(ctx, reviewer, *emp) {
		return nil, nil, &calendar.ForbiddenError{ActorID: reviewer.ID, EmployeeID: emp.ID, Action: action}
	}
	return rec, emp, nil
}

func (c *Coordinator) publish(t calendar.EventType, rec Record, emp calendar.Employee, actor calendar.Actor, at time.Time) {
	c.Notifier.Publish(calendar.Event{
		Type:       t,
		EmployeeID: emp.ID,
		TeamID:     emp.TeamID,
		Slots:      calendar.SlotRefs(rec.Keys()...),
		LeaveID:    string(rec.ID),
		ActorID:    actor.ID,
		OccurredAt: at,
	})
}

func activeRecord(ctx context.Context, repo Repository, id RecordID) (*Record, error) {
	rec, err := repo.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, notFound(id)
	}
	return rec, nil
}

func sortedYears(m map[int]decimal.Decimal) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
