package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
	"github.com/warp/slot-calendar/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	monday    = calendar.NewDate(2025, time.March, 10)
	wednesday = calendar.NewDate(2025, time.March, 12)

	admin    = calendar.Actor{ID: "admin-1", Role: calendar.RoleAdmin}
	managerA = calendar.Actor{ID: "mgr-a", Role: calendar.RoleManager, TeamID: "team-a"}
	alice    = calendar.Actor{ID: "emp-1", Role: calendar.RoleMember, TeamID: "team-a"}
)

type harness struct {
	store       *memory.Memory
	coord       *leave.Coordinator
	assignments *calendar.AssignmentService
	bus         *calendar.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, e := range []calendar.Employee{
		{ID: "emp-1", Name: "Alice", TeamID: "team-a", Active: true},
		{ID: "emp-2", Name: "Bob", TeamID: "team-a", Active: true},
		{ID: "mgr-a", Name: "Mona", TeamID: "team-a", Active: true},
	} {
		require.NoError(t, store.SaveEmployee(ctx, e))
	}

	locks := calendar.NewSlotLocks()
	bus := calendar.NewBus(32)
	now := func() time.Time { return time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC) }

	coord := &leave.Coordinator{
		Repo:        store,
		Assignments: store,
		Directory:   store,
		Notifier:    bus,
		Locks:       locks,
		Now:         now,
	}
	svc := &calendar.AssignmentService{
		Repo:      store,
		Leaves:    coord,
		Directory: store,
		Notifier:  bus,
		Locks:     locks,
		Now:       now,
	}
	return &harness{store: store, coord: coord, assignments: svc, bus: bus}
}

func (h *harness) submit(t *testing.T, in leave.SubmitInput) *leave.Record {
	t.Helper()
	rec, err := h.coord.Submit(context.Background(), alice, in)
	require.NoError(t, err)
	return rec
}

func (h *harness) fill(t *testing.T, k calendar.SlotKey, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := h.assignments.Create(context.Background(), admin, calendar.CreateInput{
			EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot,
			Payload: calendar.Payload{Task: calendar.TaskRef{Title: "work"}},
		})
		require.NoError(t, err)
	}
}

func (h *harness) capacity(t *testing.T, k calendar.SlotKey) calendar.Snapshot {
	t.Helper()
	l := &calendar.Ledger{Repo: h.store, Leaves: h.coord}
	snap, err := l.CapacityOf(context.Background(), k)
	require.NoError(t, err)
	return snap
}

func days(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func halfDay(d calendar.Date, s calendar.Slot) leave.SubmitInput {
	return leave.SubmitInput{EmployeeID: "emp-1", From: d, To: d, Type: leave.TypeAnnual, Hours: leave.HalfDayHours, Slot: s}
}

func fullDays(from, to calendar.Date) leave.SubmitInput {
	return leave.SubmitInput{EmployeeID: "emp-1", From: from, To: to, Type: leave.TypeAnnual}
}

// =============================================================================
// CAPACITY BLOCKING
// =============================================================================

func TestApprove_ScenarioD_HalfDayBlocksOneSlot(t *testing.T) {
	// GIVEN: A half-day leave for Monday afternoon
	// WHEN: It is approved
	// THEN: Monday PM loses one unit, Monday AM is unaffected

	h := newHarness(t)
	am := calendar.SlotKey{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning}
	pm := calendar.SlotKey{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotAfternoon}
	rec := h.submit(t, halfDay(monday, calendar.SlotAfternoon))

	assert.Equal(t, 4, h.capacity(t, pm).Available, "pending leave consumes nothing")

	approved, err := h.coord.Approve(context.Background(), managerA, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, managerA.ID, approved.ReviewedBy)

	assert.Equal(t, 3, h.capacity(t, pm).Available)
	assert.True(t, h.capacity(t, pm).Leave)
	assert.Equal(t, 4, h.capacity(t, am).Available)

	alloc, err := h.coord.Allocation(context.Background(), managerA, "emp-1", 2025)
	require.NoError(t, err)
	assert.True(t, days("0.5").Equal(alloc.Annual.Used))
}

func TestApprove_FullSlotIsCapacityError(t *testing.T) {
	h := newHarness(t)
	am := calendar.SlotKey{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning}
	h.fill(t, am, 4)
	rec := h.submit(t, fullDays(monday, monday))

	_, err := h.coord.Approve(context.Background(), managerA, rec.ID)
	var capErr *calendar.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, am, capErr.Key)

	got, err := h.coord.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
}

func TestApprovedLeave_BlocksFourthAssignment(t *testing.T) {
	h := newHarness(t)
	am := calendar.SlotKey{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning}
	h.fill(t, am, 3)
	rec := h.submit(t, fullDays(monday, monday))
	_, err := h.coord.Approve(context.Background(), managerA, rec.ID)
	require.NoError(t, err, "3 assignments plus leave still fit")

	_, err = h.assignments.Create(context.Background(), admin, calendar.CreateInput{
		EmployeeID: am.EmployeeID, Date: am.Date, Slot: am.Slot,
		Payload: calendar.Payload{Task: calendar.TaskRef{Title: "one too many"}},
	})
	assert.ErrorIs(t, err, calendar.ErrCapacity)
	assert.Equal(t, 4, h.capacity(t, am).Count)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestApprove_BalanceErrorLeavesAllocationUnchanged(t *testing.T) {
	// GIVEN: 2 annual days left, a 3-day request
	// WHEN: Approving
	// THEN: BalanceError; allocation and record unchanged

	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.SetAllocation(ctx, admin, leave.Allocation{
		EmployeeID: "emp-1", Year: 2025,
		Annual: leave.Balance{Total: days("2")}, Sick: leave.Balance{Total: days("10")}, Other: leave.Balance{Total: days("5")},
	})
	require.NoError(t, err)

	rec := h.submit(t, fullDays(monday, wednesday))
	assert.True(t, rec.ExceedsBalance, "submission is flagged, not blocked")
	assert.Equal(t, leave.StatusPending, rec.Status)

	before, err := h.coord.Allocation(ctx, managerA, "emp-1", 2025)
	require.NoError(t, err)

	_, err = h.coord.Approve(ctx, managerA, rec.ID)
	var balErr *leave.BalanceError
	require.ErrorAs(t, err, &balErr)
	assert.True(t, days("3").Equal(balErr.Requested))
	assert.True(t, days("2").Equal(balErr.Remaining))

	after, err := h.coord.Allocation(ctx, managerA, "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	mon := calendar.SlotKey{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning}
	assert.False(t, h.capacity(t, mon).Leave)
}

func TestApprove_SplitsAcrossYears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, fullDays(calendar.NewDate(2025, time.December, 29), calendar.NewDate(2026, time.January, 2)))

	_, err := h.coord.Approve(ctx, managerA, rec.ID)
	require.NoError(t, err)

	a25, err := h.coord.Allocation(ctx, managerA, "emp-1", 2025)
	require.NoError(t, err)
	a26, err := h.coord.Allocation(ctx, managerA, "emp-1", 2026)
	require.NoError(t, err)
	assert.True(t, days("3").Equal(a25.Annual.Used))
	assert.True(t, days("2").Equal(a26.Annual.Used))
}

func TestDelete_ApprovedRefundsAndFreesSlots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, fullDays(monday, wednesday))
	_, err := h.coord.Approve(ctx, managerA, rec.ID)
	require.NoError(t, err)

	pm := calendar.SlotKey{EmployeeID: "emp-1", Date: wednesday, Slot: calendar.SlotAfternoon}
	assert.Equal(t, 3, h.capacity(t, pm).Available)

	require.NoError(t, h.coord.Delete(ctx, managerA, rec.ID))

	assert.Equal(t, 4, h.capacity(t, pm).Available)
	alloc, err := h.coord.Allocation(ctx, managerA, "emp-1", 2025)
	require.NoError(t, err)
	assert.True(t, alloc.Annual.Used.IsZero())

	err = h.coord.Delete(ctx, managerA, rec.ID)
	assert.True(t, calendar.IsNotFound(err))
}

func TestSetAllocation_KeepsUsedDays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, fullDays(monday, monday))
	_, err := h.coord.Approve(ctx, managerA, rec.ID)
	require.NoError(t, err)

	saved, err := h.coord.SetAllocation(ctx, managerA, leave.Allocation{
		EmployeeID: "emp-1", Year: 2025,
		Annual: leave.Balance{Total: days("30"), Used: days("99")},
	})
	require.NoError(t, err)
	assert.True(t, days("30").Equal(saved.Annual.Total))
	assert.True(t, days("1").Equal(saved.Annual.Used))

	_, err = h.coord.SetAllocation(ctx, alice, leave.Allocation{EmployeeID: "emp-1", Year: 2025})
	assert.ErrorIs(t, err, calendar.ErrForbidden)
}

func TestSetAllocation_RejectsTotalBelowUsed(t *testing.T) {
	// GIVEN: An approved Mon-Wed annual leave (3 days used)
	// WHEN: A reviewer lowers the annual total below 3
	// THEN: ValidationError on the annual field; the allocation is unchanged

	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, fullDays(monday, wednesday))
	_, err := h.coord.Approve(ctx, managerA, rec.ID)
	require.NoError(t, err)

	_, err = h.coord.SetAllocation(ctx, admin, leave.Allocation{
		EmployeeID: "emp-1", Year: 2025,
		Annual: leave.Balance{Total: days("1")}, Sick: leave.Balance{Total: days("10")},
	})
	var valErr *calendar.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "annual", valErr.Field)

	alloc, err := h.coord.Allocation(ctx, managerA, "emp-1", 2025)
	require.NoError(t, err)
	assert.True(t, leave.DefaultTemplate.Annual.Equal(alloc.Annual.Total))
	assert.True(t, leave.DefaultTemplate.Sick.Equal(alloc.Sick.Total))
	assert.True(t, days("3").Equal(alloc.Annual.Used))

	// Lowering the total to exactly the used days is allowed.
	saved, err := h.coord.SetAllocation(ctx, admin, leave.Allocation{
		EmployeeID: "emp-1", Year: 2025,
		Annual: leave.Balance{Total: days("3")},
	})
	require.NoError(t, err)
	assert.True(t, saved.Annual.Remaining().IsZero())
}

func TestAllocation_RequiresMutateOrReview(t *testing.T) {
	// GIVEN: An employee on another team
	// WHEN: A team-a manager reads that employee's allocation
	// THEN: Forbidden and nothing is seeded

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveEmployee(ctx, calendar.Employee{ID: "emp-9", Name: "Zed", TeamID: "team-b", Active: true}))

	_, err := h.coord.Allocation(ctx, managerA, "emp-9", 2031)
	assert.ErrorIs(t, err, calendar.ErrForbidden)
	_, err = h.store.GetAllocation(ctx, "emp-9", 2031)
	assert.True(t, calendar.IsNotFound(err))

	_, err = h.coord.Allocation(ctx, alice, "emp-2", 2025)
	assert.ErrorIs(t, err, calendar.ErrForbidden)

	own, err := h.coord.Allocation(ctx, alice, "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, calendar.EmployeeID("emp-1"), own.EmployeeID)

	other, err := h.coord.Allocation(ctx, admin, "emp-9", 2031)
	require.NoError(t, err)
	assert.Equal(t, 2031, other.Year)
}

func TestInactiveEmployee_LeaveWritesReadAsMissing(t *testing.T) {
	// GIVEN: A pending request for Bob, who is then deactivated
	// WHEN: Submitting, approving or setting allocations for Bob
	// THEN: NotFound, as for assignments

	h := newHarness(t)
	ctx := context.Background()
	pending, err := h.coord.Submit(ctx, managerA, leave.SubmitInput{
		EmployeeID: "emp-2", From: monday, To: monday, Type: leave.TypeAnnual,
	})
	require.NoError(t, err)
	require.NoError(t, h.store.SaveEmployee(ctx, calendar.Employee{ID: "emp-2", Name: "Bob", TeamID: "team-a", Active: false}))

	_, err = h.coord.Submit(ctx, managerA, leave.SubmitInput{
		EmployeeID: "emp-2", From: wednesday, To: wednesday, Type: leave.TypeAnnual,
	})
	assert.ErrorIs(t, err, calendar.ErrNotFound)

	_, err = h.coord.Approve(ctx, managerA, pending.ID)
	assert.ErrorIs(t, err, calendar.ErrNotFound)

	_, err = h.coord.SetAllocation(ctx, admin, leave.Allocation{EmployeeID: "emp-2", Year: 2025})
	assert.ErrorIs(t, err, calendar.ErrNotFound)

	_, err = h.coord.Allocation(ctx, admin, "emp-2", 2025)
	assert.ErrorIs(t, err, calendar.ErrNotFound)
}

func TestEnsureAllocations_SeedsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.coord.EnsureAllocations(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = h.coord.EnsureAllocations(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	all, err := h.store.ListAllocations(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, leave.DefaultTemplate.Annual.Equal(all[0].Annual.Total))
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestTransitions_AreTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved := h.submit(t, fullDays(monday, monday))
	_, err := h.coord.Approve(ctx, managerA, approved.ID)
	require.NoError(t, err)

	_, err = h.coord.Approve(ctx, managerA, approved.ID)
	var trErr *leave.TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, leave.StatusApproved, trErr.From)

	_, err = h.coord.Reject(ctx, managerA, approved.ID, "too late")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	rejected := h.submit(t, fullDays(wednesday, wednesday))
	got, err := h.coord.Reject(ctx, managerA, rejected.ID, "deadline week")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, got.Status)
	assert.Equal(t, "deadline week", got.ReviewNote)

	_, err = h.coord.Approve(ctx, managerA, rejected.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	marks, err := h.coord.LeaveMarks(ctx, []calendar.EmployeeID{"emp-1"}, wednesday, wednesday)
	require.NoError(t, err)
	assert.Empty(t, marks, "rejected leave leaves no marks")
}

func TestApprove_OverlapWithApprovedLeave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.submit(t, fullDays(monday, wednesday))
	second := h.submit(t, halfDay(wednesday, calendar.SlotMorning))

	_, err := h.coord.Approve(ctx, managerA, first.ID)
	require.NoError(t, err)
	_, err = h.coord.Approve(ctx, managerA, second.ID)
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

func TestReview_RequiresReviewer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, fullDays(monday, monday))

	_, err := h.coord.Approve(ctx, alice, rec.ID)
	assert.ErrorIs(t, err, calendar.ErrForbidden, "members never review")

	own, err := h.coord.Submit(ctx, managerA, leave.SubmitInput{EmployeeID: "mgr-a", From: monday, To: monday, Type: leave.TypeSick})
	require.NoError(t, err)
	_, err = h.coord.Approve(ctx, managerA, own.ID)
	assert.ErrorIs(t, err, calendar.ErrForbidden, "managers do not approve their own leave")

	_, err = h.coord.Approve(ctx, admin, own.ID)
	assert.NoError(t, err)
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t)
	tests := map[string]leave.SubmitInput{
		"half day without slot": {EmployeeID: "emp-1", From: monday, To: monday, Type: leave.TypeAnnual, Hours: leave.HalfDayHours},
		"half day over range":   {EmployeeID: "emp-1", From: monday, To: wednesday, Type: leave.TypeAnnual, Hours: leave.HalfDayHours, Slot: calendar.SlotMorning},
		"full day with slot":    {EmployeeID: "emp-1", From: monday, To: monday, Type: leave.TypeAnnual, Slot: calendar.SlotMorning},
		"reversed range":        {EmployeeID: "emp-1", From: wednesday, To: monday, Type: leave.TypeAnnual},
		"odd hours":             {EmployeeID: "emp-1", From: monday, To: monday, Type: leave.TypeAnnual, Hours: 6},
		"unknown type":          {EmployeeID: "emp-1", From: monday, To: monday, Type: "sabbatical"},
		"weekend only":          {EmployeeID: "emp-1", From: calendar.NewDate(2025, time.March, 15), To: calendar.NewDate(2025, time.March, 16), Type: leave.TypeAnnual},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := h.coord.Submit(context.Background(), alice, in)
			assert.ErrorIs(t, err, calendar.ErrValidation)
		})
	}
}

func TestLeaveEvents_FollowTransitions(t *testing.T) {
	h := newHarness(t)
	sub := h.bus.Subscribe(calendar.TeamScope("team-a"))
	defer sub.Close()

	rec := h.submit(t, halfDay(monday, calendar.SlotMorning))
	_, err := h.coord.Approve(context.Background(), managerA, rec.ID)
	require.NoError(t, err)
	require.NoError(t, h.coord.Delete(context.Background(), admin, rec.ID))

	var got []calendar.EventType
	for len(sub.C) > 0 {
		ev := <-sub.C
		assert.Equal(t, string(rec.ID), ev.LeaveID)
		assert.Len(t, ev.Slots, 1)
		got = append(got, ev.Type)
	}
	assert.Equal(t, []calendar.EventType{
		calendar.EventLeaveSubmitted,
		calendar.EventLeaveApproved,
		calendar.EventLeaveDeleted,
	}, got)
}
