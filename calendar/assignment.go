/*
assignment.go - Capacity-safe assignment mutations

PURPOSE:
  AssignmentService is the only writer of assignment placement fields.
  Every structural change (create, move, reorder, delete) runs the same
  pipeline:

  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  validate  ──▶  directory +   ──▶  lock slot(s)  ──▶  read leave │
  │  input          authorize          (fixed order)      occupancy  │
  │                                                                  │
  │                                         │                        │
  │                                         ▼                        │
  │   publish  ◀──  commit tx  ◀──  relayout  ◀──  capacity check   │
  │   event         (not cancellable)                                │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

LOCKING:
  Slot locks are taken before the transaction and released after the
  event is published, so events of one slot leave in commit order.
  Reference-data lookups happen before the lock.

RANK COLLISIONS:
  If the store reports ErrRankTaken (another process wrote the same rank),
  the whole locked section is retried once; the second failure surfaces
  as ConflictError.

CANCELLATION:
  The context is checked once the locks are held. From there on the commit
  runs under context.WithoutCancel and always completes.

SEE ALSO:
  - layout.go: Relayout / CheckSlot
  - capacity.go: Snapshot.CanPlace
  - locks.go: SlotLocks
*/
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// =============================================================================
// ASSIGNMENT SERVICE
// =============================================================================

type AssignmentService struct {
	Repo       TxRepository
	Leaves     LeaveSource
	Directory  Directory
	Authorizer Authorizer
	Notifier   Notifier
	Locks      *SlotLocks
	Logger     *zap.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() AssignmentID

	initOnce sync.Once
}

type CreateInput struct {
	EmployeeID    EmployeeID
	Date          Date
	Slot          Slot
	Payload       Payload
	AllowOverbook bool
}

type MoveInput struct {
	ID            AssignmentID
	EmployeeID    EmployeeID
	Date          Date
	Slot          Slot
	AllowOverbook bool
}

func (s *AssignmentService) init() {
	s.initOnce.Do(func() {
		if s.Locks == nil {
			s.Locks = NewSlotLocks()
		}
		if s.Logger == nil {
			s.Logger = zap.NewNop()
		}
		if s.Notifier == nil {
			s.Notifier = NopNotifier{}
		}
		if s.Authorizer == nil {
			s.Authorizer = RoleAuthorizer{}
		}
		if s.Leaves == nil {
			s.Leaves = NoLeave{}
		}
		if s.Now == nil {
			s.Now = time.Now
		}
		if s.NewID == nil {
			s.NewID = func() AssignmentID { return AssignmentID(uuid.NewString()) }
		}
	})
}

// Get returns an active assignment.
func (s *AssignmentService) Get(ctx context.Context, actor Actor, id AssignmentID) (*Assignment, error) {
	s.init()
	a, err := getActive(ctx, s.Repo, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(ctx, actor, a.EmployeeID); err != nil {
		return nil, err
	}
	return a, nil
}

// Capacity returns the current snapshot of a slot. Advisory only: every
// mutation re-checks capacity under the slot lock.
func (s *AssignmentService) Capacity(ctx context.Context, actor Actor, key SlotKey) (Snapshot, error) {
	s.init()
	if err := s.visible(ctx, actor, key.EmployeeID); err != nil {
		return Snapshot{}, err
	}
	l := &Ledger{Repo: s.Repo, Leaves: s.Leaves}
	return l.CapacityOf(ctx, key)
}

// =============================================================================
// CREATE
// =============================================================================

// Create places a new assignment last in its slot.
func (s *AssignmentService) Create(ctx context.Context, actor Actor, in CreateInput) (*Assignment, error) {
	s.init()

	if err := validatePlacement(in.Date, in.Slot); err != nil {
		return nil, err
	}
	payload := in.Payload.withDefaults()
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	emp, err := s.authorize(ctx, actor, in.EmployeeID, "create assignments", in.AllowOverbook)
	if err != nil {
		return nil, err
	}

	key := SlotKey{EmployeeID: in.EmployeeID, Date: in.Date, Slot: in.Slot}
	unlock := s.Locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	leave, err := leaveOccupies(ctx, s.Leaves, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read leave occupancy: %w", err)
	}

	now := s.Now().UTC()
	created := Assignment{
		ID:         s.NewID(),
		EmployeeID: in.EmployeeID,
		Date:       in.Date,
		Slot:       in.Slot,
		Payload:    payload,
		IsActive:   true,
		CreatedBy:  actor.ID,
		UpdatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	cctx := context.WithoutCancel(ctx)
	err = s.commit(cctx, key, func(tx Repository) error {
		items, err := s.readSlot(cctx, tx, key)
		if err != nil {
			return err
		}
		snap := NewSnapshot(key, len(items), leave)
		if !snap.CanPlace(in.AllowOverbook) {
			return &CapacityError{Key: key, Snapshot: snap}
		}

		created.SlotOrder = len(items)
		items = Relayout(append(items, created))
		if err := s.checkSlot(key, items); err != nil {
			return err
		}
		created = find(items, created.ID)
		return tx.SaveAssignments(cctx, items...)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("assignment created",
		zap.String("assignment_id", string(created.ID)),
		zap.String("slot", key.String()),
		zap.Int("slot_order", created.SlotOrder))

	s.Notifier.Publish(Event{
		Type:         EventAssignmentCreated,
		EmployeeID:   emp.ID,
		TeamID:       emp.TeamID,
		Slots:        SlotRefs(key),
		AssignmentID: created.ID,
		ActorID:      actor.ID,
		OccurredAt:   now,
	})
	return &created, nil
}

// =============================================================================
// MOVE
// =============================================================================

// Move relocates an assignment to the end of the destination slot. The
// source slot is re-ranked. Either both slots change or neither does.
// Moving onto the same slot sends the item to the end of it.
func (s *AssignmentService) Move(ctx context.Context, actor Actor, in MoveInput) (*Assignment, error) {
	s.init()

	if err := validatePlacement(in.Date, in.Slot); err != nil {
		return nil, err
	}
	current, err := getActive(ctx, s.Repo, in.ID)
	if err != nil {
		return nil, err
	}
	srcEmp, err := s.authorize(ctx, actor, current.EmployeeID, "move assignments", in.AllowOverbook)
	if err != nil {
		return nil, err
	}
	dstEmp := srcEmp
	if in.EmployeeID != current.EmployeeID {
		if dstEmp, err = s.authorize(ctx, actor, in.EmployeeID, "move assignments", in.AllowOverbook); err != nil {
			return nil, err
		}
	}

	dst := SlotKey{EmployeeID: in.EmployeeID, Date: in.Date, Slot: in.Slot}
	locked, unlock, err := s.lockAssignment(ctx, in.ID, dst)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := locked.Key()
	dstLeave, err := leaveOccupies(ctx, s.Leaves, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to read leave occupancy: %w", err)
	}

	now := s.Now().UTC()
	var moved Assignment

	cctx := context.WithoutCancel(ctx)
	err = s.commit(cctx, dst, func(tx Repository) error {
		srcItems, err := s.readSlot(cctx, tx, src)
		if err != nil {
			return err
		}
		mover, rest, ok := take(srcItems, in.ID)
		if !ok {
			return notFound(in.ID)
		}
		mover.UpdatedBy = actor.ID
		mover.UpdatedAt = now

		if src == dst {
			snap := NewSnapshot(dst, len(rest), dstLeave)
			if !snap.CanPlace(in.AllowOverbook) {
				return &CapacityError{Key: dst, Snapshot: snap}
			}
			mover.SlotOrder = len(rest)
			items := renumber(append(renumber(rest), mover))
			if err := s.checkSlot(dst, items); err != nil {
				return err
			}
			moved = find(items, in.ID)
			return tx.SaveAssignments(cctx, items...)
		}

		dstItems, err := s.readSlot(cctx, tx, dst)
		if err != nil {
			return err
		}
		snap := NewSnapshot(dst, len(dstItems), dstLeave)
		if !snap.CanPlace(in.AllowOverbook) {
			return &CapacityError{Key: dst, Snapshot: snap}
		}

		rest = renumber(rest)
		mover.EmployeeID, mover.Date, mover.Slot = dst.EmployeeID, dst.Date, dst.Slot
		mover.SlotOrder = len(dstItems)
		dstItems = Relayout(append(dstItems, mover))

		if err := s.checkSlot(src, rest); err != nil {
			return err
		}
		if err := s.checkSlot(dst, dstItems); err != nil {
			return err
		}
		moved = find(dstItems, in.ID)
		return tx.SaveAssignments(cctx, append(rest, dstItems...)...)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("assignment moved",
		zap.String("assignment_id", string(in.ID)),
		zap.String("from", src.String()),
		zap.String("to", dst.String()))

	ev := Event{
		Type:         EventAssignmentMoved,
		EmployeeID:   dstEmp.ID,
		TeamID:       dstEmp.TeamID,
		Slots:        SlotRefs(src, dst),
		AssignmentID: in.ID,
		ActorID:      actor.ID,
		OccurredAt:   now,
	}
	if srcEmp.ID != dstEmp.ID {
		ev.PreviousEmployeeID = srcEmp.ID
		ev.PreviousTeamID = srcEmp.TeamID
	}
	s.Notifier.Publish(ev)
	return &moved, nil
}

// =============================================================================
// REORDER
// =============================================================================

// Reorder moves an assignment to an explicit rank inside its current slot.
// Capacity is unaffected.
func (s *AssignmentService) Reorder(ctx context.Context, actor Actor, id AssignmentID, rank int) (*Assignment, error) {
	s.init()

	current, err := getActive(ctx, s.Repo, id)
	if err != nil {
		return nil, err
	}
	emp, err := s.authorize(ctx, actor, current.EmployeeID, "reorder assignments", false)
	if err != nil {
		return nil, err
	}

	locked, unlock, err := s.lockAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := locked.Key()
	now := s.Now().UTC()
	var reordered Assignment

	cctx := context.WithoutCancel(ctx)
	err = s.commit(cctx, key, func(tx Repository) error {
		items, err := s.readSlot(cctx, tx, key)
		if err != nil {
			return err
		}
		if rank < 0 || rank >= len(items) {
			return &ValidationError{Field: "rank", Message: fmt.Sprintf("must be between 0 and %d", len(items)-1)}
		}
		mover, rest, ok := take(items, id)
		if !ok {
			return notFound(id)
		}
		mover.UpdatedBy = actor.ID
		mover.UpdatedAt = now

		ordered := make([]Assignment, 0, len(items))
		ordered = append(ordered, rest[:rank]...)
		ordered = append(ordered, mover)
		ordered = append(ordered, rest[rank:]...)
		ordered = renumber(ordered)

		if err := s.checkSlot(key, ordered); err != nil {
			return err
		}
		reordered = find(ordered, id)
		return tx.SaveAssignments(cctx, ordered...)
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Publish(Event{
		Type:         EventAssignmentReordered,
		EmployeeID:   emp.ID,
		TeamID:       emp.TeamID,
		Slots:        SlotRefs(key),
		AssignmentID: id,
		ActorID:      actor.ID,
		OccurredAt:   now,
	})
	return &reordered, nil
}

// =============================================================================
// UPDATE / BULK UPDATE
// =============================================================================

// Update changes payload fields only. No placement effect, no capacity check.
func (s *AssignmentService) Update(ctx context.Context, actor Actor, id AssignmentID, u FieldUpdate) (*Assignment, error) {
	s.init()

	if u.IsEmpty() {
		return nil, &ValidationError{Field: "fields", Message: "no fields to update"}
	}
	if err := validateDuration(u.DurationHours); err != nil {
		return nil, err
	}
	current, err := getActive(ctx, s.Repo, id)
	if err != nil {
		return nil, err
	}
	emp, err := s.authorize(ctx, actor, current.EmployeeID, "update assignments", false)
	if err != nil {
		return nil, err
	}

	locked, unlock, err := s.lockAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := u.Apply(locked.Payload)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	updated := locked
	updated.Payload = payload
	updated.UpdatedBy = actor.ID
	updated.UpdatedAt = now

	cctx := context.WithoutCancel(ctx)
	if err := s.Repo.WithTx(cctx, func(tx Repository) error {
		return tx.SaveAssignments(cctx, updated)
	}); err != nil {
		return nil, err
	}

	s.Notifier.Publish(Event{
		Type:         EventAssignmentUpdated,
		EmployeeID:   emp.ID,
		TeamID:       emp.TeamID,
		Slots:        SlotRefs(updated.Key()),
		AssignmentID: id,
		ActorID:      actor.ID,
		OccurredAt:   now,
	})
	return &updated, nil
}

// BatchFailure is one id that could not be updated.
type BatchFailure struct {
	ID  AssignmentID
	Err error
}

// BatchResult collects per-id outcomes. Successful ids stay committed
// regardless of failures elsewhere in the batch.
type BatchResult struct {
	Updated []Assignment
	Failed  []BatchFailure
}

// Err combines every failure, or returns nil when the batch fully succeeded.
func (r *BatchResult) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, fmt.Errorf("assignment %s: %w", f.ID, f.Err))
	}
	return err
}

// BulkUpdate applies the same field set to every id independently.
func (s *AssignmentService) BulkUpdate(ctx context.Context, actor Actor, ids []AssignmentID, u FieldUpdate) (*BatchResult, error) {
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "ids", Message: "at least one assignment id is required"}
	}
	if u.IsEmpty() {
		return nil, &ValidationError{Field: "fields", Message: "no fields to update"}
	}

	result := &BatchResult{}
	seen := make(map[AssignmentID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, BatchFailure{ID: id, Err: err})
			continue
		}
		updated, err := s.Update(ctx, actor, id, u)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{ID: id, Err: err})
			continue
		}
		result.Updated = append(result.Updated, *updated)
	}
	return result, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete tombstones an assignment and closes the rank gap it leaves.
// Deleting an already-deleted id returns NotFoundError and changes nothing.
func (s *AssignmentService) Delete(ctx context.Context, actor Actor, id AssignmentID) error {
	s.init()

	current, err := getActive(ctx, s.Repo, id)
	if err != nil {
		return err
	}
	emp, err := s.authorize(ctx, actor, current.EmployeeID, "delete assignments", false)
	if err != nil {
		return err
	}

	locked, unlock, err := s.lockAssignment(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	key := locked.Key()
	now := s.Now().UTC()

	cctx := context.WithoutCancel(ctx)
	err = s.commit(cctx, key, func(tx Repository) error {
		items, err := s.readSlot(cctx, tx, key)
		if err != nil {
			return err
		}
		gone, rest, ok := take(items, id)
		if !ok {
			return notFound(id)
		}
		rest = renumber(rest)
		if err := s.checkSlot(key, rest); err != nil {
			return err
		}
		gone.IsActive = false
		gone.DeletedAt = &now
		gone.UpdatedAt = now
		gone.UpdatedBy = actor.ID
		return tx.SaveAssignments(cctx, append([]Assignment{gone}, rest...)...)
	})
	if err != nil {
		return err
	}

	s.Notifier.Publish(Event{
		Type:         EventAssignmentDeleted,
		EmployeeID:   emp.ID,
		TeamID:       emp.TeamID,
		Slots:        SlotRefs(key),
		AssignmentID: id,
		ActorID:      actor.ID,
		OccurredAt:   now,
	})
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

var errMovedConcurrently = errors.New("assignment moved concurrently")

// lockAssignment locks the slot currently holding id plus extra keys. If a
// concurrent move relocated id between the lookup and the lock, the lookup
// is repeated once.
func (s *AssignmentService) lockAssignment(ctx context.Context, id AssignmentID, extra ...SlotKey) (Assignment, func(), error) {
	before, err := getActive(ctx, s.Repo, id)
	if err != nil {
		return Assignment{}, nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		unlock := s.Locks.Lock(append([]SlotKey{before.Key()}, extra...)...)
		after, err := getActive(ctx, s.Repo, id)
		if err != nil {
			unlock()
			return Assignment{}, nil, err
		}
		if after.Key() == before.Key() {
			return *after, unlock, nil
		}
		unlock()
		before = after
	}
	return Assignment{}, nil, &ConflictError{Key: before.Key(), Cause: errMovedConcurrently}
}

// commit runs fn in a transaction, retrying once on a rank collision.
func (s *AssignmentService) commit(ctx context.Context, key SlotKey, fn func(Repository) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.Repo.WithTx(ctx, fn)
		if !errors.Is(err, ErrRankTaken) {
			return err
		}
		s.Logger.Warn("slot rank collision", zap.String("slot", key.String()), zap.Int("attempt", attempt+1))
	}
	return &ConflictError{Key: key, Cause: err}
}

// readSlot loads a slot and verifies it before anything is changed.
func (s *AssignmentService) readSlot(ctx context.Context, tx Repository, key SlotKey) ([]Assignment, error) {
	items, err := tx.SlotAssignments(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.checkSlot(key, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *AssignmentService) checkSlot(key SlotKey, items []Assignment) error {
	if err := CheckSlot(key, items); err != nil {
		s.Logger.Error("slot invariant violated, aborting operation",
			zap.String("slot", key.String()),
			zap.Int("items", len(items)),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *AssignmentService) authorize(ctx context.Context, actor Actor, id EmployeeID, action string, overbook bool) (*Employee, error) {
	if s.Directory == nil {
		return nil, errors.New("assignment service has no directory")
	}
	emp, err := s.Directory.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, &NotFoundError{Kind: "employee", ID: string(id)}
	}
	if !s.Authorizer.CanMutate(ctx, actor, *emp) {
		return nil, &ForbiddenError{ActorID: actor.ID, EmployeeID: id, Action: action}
	}
	if overbook && !s.Authorizer.CanOverbook(ctx, actor) {
		return nil, &ForbiddenError{ActorID: actor.ID, EmployeeID: id, Action: "overbook slots"}
	}
	return emp, nil
}

// visible fails unless the employee is in the actor's view scope.
func (s *AssignmentService) visible(ctx context.Context, actor Actor, id EmployeeID) error {
	if s.Directory == nil {
		return errors.New("assignment service has no directory")
	}
	emp, err := s.Directory.GetEmployee(ctx, id)
	if err != nil {
		return err
	}
	if actor.ID != string(emp.ID) && !ScopeFor(actor).Includes(emp.TeamID) {
		return &ForbiddenError{ActorID: actor.ID, EmployeeID: id, Action: "view schedule"}
	}
	return nil
}

func validatePlacement(date Date, slot Slot) error {
	if date.IsZero() {
		return &ValidationError{Field: "date", Message: "is required"}
	}
	if date.IsWeekend() {
		return &ValidationError{Field: "date", Message: fmt.Sprintf("%s is a weekend", date)}
	}
	if !slot.Valid() {
		return &ValidationError{Field: "slot", Message: fmt.Sprintf("unknown slot %q", slot)}
	}
	return nil
}

func getActive(ctx context.Context, repo Repository, id AssignmentID) (*Assignment, error) {
	a, err := repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, notFound(id)
	}
	return a, nil
}

// take splits items into the one with id and the rest, keeping order.
func take(items []Assignment, id AssignmentID) (Assignment, []Assignment, bool) {
	rest := make([]Assignment, 0, len(items))
	var found Assignment
	ok := false
	for _, a := range items {
		if a.ID == id {
			found, ok = a, true
			continue
		}
		rest = append(rest, a)
	}
	return found, rest, ok
}

// renumber assigns ranks by current slice position and restamps layouts.
func renumber(items []Assignment) []Assignment {
	for i := range items {
		items[i].SlotOrder = i
		items[i].Layout = LayoutFor(i, len(items))
	}
	return items
}

func find(items []Assignment, id AssignmentID) Assignment {
	for _, a := range items {
		if a.ID == id {
			return a
		}
	}
	return Assignment{}
}
