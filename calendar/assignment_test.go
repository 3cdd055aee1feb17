package calendar_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	monday  = calendar.NewDate(2025, time.March, 10)
	tuesday = calendar.NewDate(2025, time.March, 11)

	admin    = calendar.Actor{ID: "admin-1", Role: calendar.RoleAdmin}
	managerA = calendar.Actor{ID: "mgr-a", Role: calendar.RoleManager, TeamID: "team-a"}
	memberB  = calendar.Actor{ID: "emp-3", Role: calendar.RoleMember, TeamID: "team-b"}
)

type harness struct {
	svc   *calendar.AssignmentService
	store *memory.Memory
	bus   *calendar.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for _, e := range []calendar.Employee{
		{ID: "emp-1", Name: "Alice", TeamID: "team-a", Active: true},
		{ID: "emp-2", Name: "Bob", TeamID: "team-a", Active: true},
		{ID: "emp-3", Name: "Carol", TeamID: "team-b", Active: true},
	} {
		require.NoError(t, store.SaveEmployee(ctx, e))
	}

	bus := calendar.NewBus(16)
	svc := &calendar.AssignmentService{
		Repo:      store,
		Directory: store,
		Notifier:  bus,
		Locks:     calendar.NewSlotLocks(),
		Now:       func() time.Time { return time.Date(2025, time.March, 7, 9, 0, 0, 0, time.UTC) },
	}
	return &harness{svc: svc, store: store, bus: bus}
}

func key(emp calendar.EmployeeID, d calendar.Date, s calendar.Slot) calendar.SlotKey {
	return calendar.SlotKey{EmployeeID: emp, Date: d, Slot: s}
}

func (h *harness) create(t *testing.T, k calendar.SlotKey, title string) *calendar.Assignment {
	t.Helper()
	a, err := h.svc.Create(context.Background(), admin, calendar.CreateInput{
		EmployeeID: k.EmployeeID,
		Date:       k.Date,
		Slot:       k.Slot,
		Payload:    calendar.Payload{Task: calendar.TaskRef{Title: title}},
	})
	require.NoError(t, err)
	return a
}

func (h *harness) slot(t *testing.T, k calendar.SlotKey) []calendar.Assignment {
	t.Helper()
	items, err := h.store.SlotAssignments(context.Background(), k)
	require.NoError(t, err)
	return items
}

func titles(items []calendar.Assignment) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.Task.Title
	}
	return out
}

func orders(items []calendar.Assignment) []int {
	out := make([]int, len(items))
	for i, a := range items {
		out[i] = a.SlotOrder
	}
	return out
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_PlacesLastWithDefaults(t *testing.T) {
	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)

	first := h.create(t, k, "survey")
	second := h.create(t, k, "drawings")

	assert.Equal(t, 0, first.SlotOrder)
	assert.Equal(t, 1, second.SlotOrder)
	assert.Equal(t, calendar.PriorityNormal, second.Priority)
	assert.Equal(t, calendar.StatusTodo, second.Status)
	assert.Equal(t, admin.ID, second.CreatedBy)

	items := h.slot(t, k)
	require.Len(t, items, 2)
	assert.Equal(t, calendar.LayoutFor(0, 2), items[0].Layout)
	assert.Equal(t, calendar.LayoutFor(1, 2), items[1].Layout)
	assert.Equal(t, 2, items[0].Hours())
}

func TestCreate_ScenarioB_FifthItemRejected(t *testing.T) {
	// GIVEN: Monday morning already holds 4 assignments
	// WHEN: A 5th create arrives for the same slot
	// THEN: CapacityError, and the slot still has exactly 4 items

	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	for _, title := range []string{"a", "b", "c", "d"} {
		h.create(t, k, title)
	}

	_, err := h.svc.Create(context.Background(), admin, calendar.CreateInput{
		EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot,
		Payload: calendar.Payload{Task: calendar.TaskRef{Title: "e"}},
	})

	var capErr *calendar.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.ErrorIs(t, err, calendar.ErrCapacity)
	assert.Equal(t, 4, capErr.Snapshot.Count)
	assert.Equal(t, 0, capErr.Snapshot.Available)

	items := h.slot(t, k)
	assert.Equal(t, []int{0, 1, 2, 3}, orders(items))
}

func TestCreate_OverbookRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotAfternoon)
	for _, title := range []string{"a", "b", "c", "d"} {
		h.create(t, k, title)
	}
	in := calendar.CreateInput{
		EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot,
		Payload:       calendar.Payload{Task: calendar.TaskRef{Title: "urgent fix"}},
		AllowOverbook: true,
	}

	_, err := h.svc.Create(context.Background(), managerA, in)
	assert.ErrorIs(t, err, calendar.ErrForbidden, "managers cannot override capacity")

	a, err := h.svc.Create(context.Background(), admin, in)
	require.NoError(t, err)
	assert.Equal(t, 4, a.SlotOrder)

	snap, err := h.svc.Capacity(context.Background(), admin, k)
	require.NoError(t, err)
	assert.True(t, snap.Overbooked)
	assert.Equal(t, 0, snap.Available)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	saturday := calendar.NewDate(2025, time.March, 15)

	tests := []struct {
		name string
		in   calendar.CreateInput
	}{
		{"weekend", calendar.CreateInput{EmployeeID: "emp-1", Date: saturday, Slot: calendar.SlotMorning, Payload: calendar.Payload{Task: calendar.TaskRef{Title: "x"}}}},
		{"missing date", calendar.CreateInput{EmployeeID: "emp-1", Slot: calendar.SlotMorning, Payload: calendar.Payload{Task: calendar.TaskRef{Title: "x"}}}},
		{"bad slot", calendar.CreateInput{EmployeeID: "emp-1", Date: monday, Slot: "evening", Payload: calendar.Payload{Task: calendar.TaskRef{Title: "x"}}}},
		{"missing title", calendar.CreateInput{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning}},
		{"bad duration", calendar.CreateInput{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, Payload: calendar.Payload{Task: calendar.TaskRef{Title: "x"}, DurationHours: intPtr(6)}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), admin, tc.in)
			assert.ErrorIs(t, err, calendar.ErrValidation)
		})
	}
}

func TestCreate_Authorization(t *testing.T) {
	h := newHarness(t)
	in := calendar.CreateInput{
		EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning,
		Payload: calendar.Payload{Task: calendar.TaskRef{Title: "x"}},
	}

	_, err := h.svc.Create(context.Background(), memberB, in)
	var forbidden *calendar.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, calendar.EmployeeID("emp-1"), forbidden.EmployeeID)

	_, err = h.svc.Create(context.Background(), managerA, in)
	assert.NoError(t, err)

	in.EmployeeID = "emp-404"
	_, err = h.svc.Create(context.Background(), admin, in)
	assert.True(t, calendar.IsNotFound(err))
}

func TestCreate_ApprovedLeaveTakesOneUnit(t *testing.T) {
	// GIVEN: Approved leave covers Monday morning
	// WHEN: Filling the slot
	// THEN: Only 3 assignments fit

	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	h.svc.Leaves = staticLeave{{Key: k, RecordID: "lv-1", Approved: true}}

	for _, title := range []string{"a", "b", "c"} {
		h.create(t, k, title)
	}
	_, err := h.svc.Create(context.Background(), admin, calendar.CreateInput{
		EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot,
		Payload: calendar.Payload{Task: calendar.TaskRef{Title: "d"}},
	})
	var capErr *calendar.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.True(t, capErr.Snapshot.Leave)
	assert.Len(t, h.slot(t, k), 3)
}

func TestCreate_PendingLeaveTakesNothing(t *testing.T) {
	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	h.svc.Leaves = staticLeave{{Key: k, RecordID: "lv-1", Approved: false}}

	for _, title := range []string{"a", "b", "c", "d"} {
		h.create(t, k, title)
	}
	assert.Len(t, h.slot(t, k), 4)
}

func TestCreate_CancelledContextWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Create(ctx, admin, calendar.CreateInput{
		EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning,
		Payload: calendar.Payload{Task: calendar.TaskRef{Title: "x"}},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.slot(t, key("emp-1", monday, calendar.SlotMorning)))
}

func TestCreate_ConcurrentWritersNeverExceedCapacity(t *testing.T) {
	h := newHarness(t)
	k := key("emp-2", tuesday, calendar.SlotAfternoon)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Create(context.Background(), admin, calendar.CreateInput{
				EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot,
				Payload: calendar.Payload{Task: calendar.TaskRef{Title: "parallel"}},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, calendar.ErrCapacity) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, calendar.SlotCapacity, succeeded)
	assert.Equal(t, 12-calendar.SlotCapacity, rejected)
	items := h.slot(t, k)
	assert.Equal(t, []int{0, 1, 2, 3}, orders(items))
	require.NoError(t, calendar.CheckSlot(k, items))
}

// =============================================================================
// MOVE / REORDER
// =============================================================================

func TestMove_ReranksSourceAndAppendsAtDestination(t *testing.T) {
	h := newHarness(t)
	src := key("emp-1", monday, calendar.SlotMorning)
	dst := key("emp-2", tuesday, calendar.SlotAfternoon)
	h.create(t, src, "a")
	b := h.create(t, src, "b")
	h.create(t, src, "c")
	h.create(t, dst, "x")

	moved, err := h.svc.Move(context.Background(), managerA, calendar.MoveInput{
		ID: b.ID, EmployeeID: dst.EmployeeID, Date: dst.Date, Slot: dst.Slot,
	})
	require.NoError(t, err)
	assert.Equal(t, dst, moved.Key())
	assert.Equal(t, 1, moved.SlotOrder)

	srcItems := h.slot(t, src)
	assert.Equal(t, []string{"a", "c"}, titles(srcItems))
	assert.NoError(t, calendar.CheckSlot(src, srcItems))

	dstItems := h.slot(t, dst)
	assert.Equal(t, []string{"x", "b"}, titles(dstItems))
	assert.NoError(t, calendar.CheckSlot(dst, dstItems))
}

func TestMove_FailedMoveLeavesBothSlotsUntouched(t *testing.T) {
	// GIVEN: A full destination slot
	// WHEN: Moving an item into it
	// THEN: CapacityError and both slots identical to before

	h := newHarness(t)
	src := key("emp-1", monday, calendar.SlotMorning)
	dst := key("emp-1", monday, calendar.SlotAfternoon)
	h.create(t, src, "a")
	b := h.create(t, src, "b")
	for _, title := range []string{"w", "x", "y", "z"} {
		h.create(t, dst, title)
	}
	srcBefore, dstBefore := h.slot(t, src), h.slot(t, dst)

	_, err := h.svc.Move(context.Background(), admin, calendar.MoveInput{
		ID: b.ID, EmployeeID: dst.EmployeeID, Date: dst.Date, Slot: dst.Slot,
	})
	assert.ErrorIs(t, err, calendar.ErrCapacity)
	assert.Equal(t, srcBefore, h.slot(t, src))
	assert.Equal(t, dstBefore, h.slot(t, dst))
}

func TestMove_SameSlotSendsToEnd(t *testing.T) {
	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	a := h.create(t, k, "a")
	h.create(t, k, "b")
	h.create(t, k, "c")
	h.create(t, k, "d")

	moved, err := h.svc.Move(context.Background(), admin, calendar.MoveInput{
		ID: a.ID, EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot,
	})
	require.NoError(t, err, "a full slot still accepts a move within itself")
	assert.Equal(t, 3, moved.SlotOrder)
	assert.Equal(t, []string{"b", "c", "d", "a"}, titles(h.slot(t, k)))
}

func TestMove_PublishesPreviousTeam(t *testing.T) {
	h := newHarness(t)
	teamA := h.bus.Subscribe(calendar.TeamScope("team-a"))
	defer teamA.Close()

	a := h.create(t, key("emp-1", monday, calendar.SlotMorning), "handover")
	<-teamA.C

	_, err := h.svc.Move(context.Background(), admin, calendar.MoveInput{
		ID: a.ID, EmployeeID: "emp-3", Date: monday, Slot: calendar.SlotMorning,
	})
	require.NoError(t, err)

	select {
	case ev := <-teamA.C:
		assert.Equal(t, calendar.EventAssignmentMoved, ev.Type)
		assert.Equal(t, calendar.TeamID("team-b"), ev.TeamID)
		assert.Equal(t, calendar.TeamID("team-a"), ev.PreviousTeamID)
		assert.Len(t, ev.Slots, 2)
	default:
		t.Fatal("team-a should see an item leaving its schedule")
	}
}

func TestReorder_ExplicitRank(t *testing.T) {
	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	h.create(t, k, "a")
	h.create(t, k, "b")
	c := h.create(t, k, "c")

	got, err := h.svc.Reorder(context.Background(), admin, c.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SlotOrder)
	assert.Equal(t, calendar.LayoutFor(0, 3), got.Layout)
	assert.Equal(t, []string{"c", "a", "b"}, titles(h.slot(t, k)))

	_, err = h.svc.Reorder(context.Background(), admin, c.ID, 3)
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

// =============================================================================
// UPDATE / BULK UPDATE
// =============================================================================

func TestUpdate_PayloadOnly(t *testing.T) {
	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	a := h.create(t, k, "a")
	h.create(t, k, "b")

	status := calendar.StatusDone
	notes := "signed off"
	got, err := h.svc.Update(context.Background(), managerA, a.ID, calendar.FieldUpdate{Status: &status, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusDone, got.Status)
	assert.Equal(t, "signed off", got.Notes)
	assert.Equal(t, 0, got.SlotOrder)
	assert.Equal(t, a.Layout, got.Layout)

	_, err = h.svc.Update(context.Background(), managerA, a.ID, calendar.FieldUpdate{})
	assert.ErrorIs(t, err, calendar.ErrValidation)

	bad := calendar.Priority("asap")
	_, err = h.svc.Update(context.Background(), managerA, a.ID, calendar.FieldUpdate{Priority: &bad})
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

func TestBulkUpdate_IndependentPerID(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, key("emp-1", monday, calendar.SlotMorning), "a")
	b := h.create(t, key("emp-2", monday, calendar.SlotMorning), "b")
	c := h.create(t, key("emp-3", monday, calendar.SlotMorning), "c")

	high := calendar.PriorityHigh
	res, err := h.svc.BulkUpdate(context.Background(), managerA,
		[]calendar.AssignmentID{a.ID, b.ID, a.ID, c.ID, "missing"},
		calendar.FieldUpdate{Priority: &high})
	require.NoError(t, err)

	assert.Len(t, res.Updated, 2, "duplicates collapse, team-a items succeed")
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[0].Err, calendar.ErrForbidden)
	assert.ErrorIs(t, res.Failed[1].Err, calendar.ErrNotFound)
	assert.ErrorIs(t, res.Err(), calendar.ErrNotFound)

	got, err := h.svc.Get(context.Background(), admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, calendar.PriorityHigh, got.Priority)
}

func TestBulkUpdate_EmptyIDSet(t *testing.T) {
	h := newHarness(t)
	done := calendar.StatusDone
	_, err := h.svc.BulkUpdate(context.Background(), admin, nil, calendar.FieldUpdate{Status: &done})
	assert.ErrorIs(t, err, calendar.ErrValidation)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_ScenarioA_ReranksAndSwitchesLayout(t *testing.T) {
	// GIVEN: Slot with orders 0,1,2 (2-top/1-bottom layout)
	// WHEN: Deleting order 1
	// THEN: Former 0 and 2 hold {0,1} with the halves layout

	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	h.create(t, k, "first")
	middle := h.create(t, k, "middle")
	h.create(t, k, "last")
	assert.Equal(t, calendar.Layout{ColumnStart: 2, Row: 1, Column: 0, Width: 2, Height: 1}, h.slot(t, k)[2].Layout)

	require.NoError(t, h.svc.Delete(context.Background(), admin, middle.ID))

	items := h.slot(t, k)
	assert.Equal(t, []string{"first", "last"}, titles(items))
	assert.Equal(t, []int{0, 1}, orders(items))
	for _, it := range items {
		assert.Equal(t, 1, it.Layout.Width)
		assert.Equal(t, 2, it.Layout.Height)
	}

	tomb, err := h.store.GetAssignment(context.Background(), middle.ID)
	require.NoError(t, err)
	assert.False(t, tomb.IsActive)
	assert.NotNil(t, tomb.DeletedAt)
}

func TestDelete_TwiceIsNotFound(t *testing.T) {
	h := newHarness(t)
	k := key("emp-1", monday, calendar.SlotMorning)
	a := h.create(t, k, "a")
	h.create(t, k, "b")
	h.create(t, k, "c")

	require.NoError(t, h.svc.Delete(context.Background(), admin, a.ID))
	before := h.slot(t, k)

	err := h.svc.Delete(context.Background(), admin, a.ID)
	var nf *calendar.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, before, h.slot(t, k))
}

// =============================================================================
// RANK COLLISIONS
// =============================================================================

// flakyRepo reports a rank collision for the first n saves.
type flakyRepo struct {
	*memory.Memory
	failures int
}

func (f *flakyRepo) WithTx(ctx context.Context, fn func(calendar.Repository) error) error {
	return f.Memory.WithTx(ctx, func(tx calendar.Repository) error {
		return fn(&flakyTx{Repository: tx, repo: f})
	})
}

type flakyTx struct {
	calendar.Repository
	repo *flakyRepo
}

func (t *flakyTx) SaveAssignments(ctx context.Context, items ...calendar.Assignment) error {
	if t.repo.failures > 0 {
		t.repo.failures--
		return calendar.ErrRankTaken
	}
	return t.Repository.SaveAssignments(ctx, items...)
}

func TestCreate_RankCollisionRetriedOnce(t *testing.T) {
	h := newHarness(t)
	repo := &flakyRepo{Memory: h.store, failures: 1}
	h.svc.Repo = repo
	k := key("emp-1", monday, calendar.SlotMorning)

	a := h.create(t, k, "a")
	assert.Equal(t, 0, a.SlotOrder)
	assert.Len(t, h.slot(t, k), 1)
}

func TestCreate_RepeatedRankCollisionIsConflict(t *testing.T) {
	h := newHarness(t)
	h.svc.Repo = &flakyRepo{Memory: h.store, failures: 2}
	k := key("emp-1", monday, calendar.SlotMorning)

	_, err := h.svc.Create(context.Background(), admin, calendar.CreateInput{
		EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot,
		Payload: calendar.Payload{Task: calendar.TaskRef{Title: "a"}},
	})
	var conflict *calendar.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, calendar.IsRetryable(err))
	assert.ErrorIs(t, err, calendar.ErrRankTaken)
	assert.Empty(t, h.slot(t, k))
}

// =============================================================================
// HELPERS
// =============================================================================

type staticLeave []calendar.LeaveMark

func (s staticLeave) LeaveMarks(_ context.Context, ids []calendar.EmployeeID, from, to calendar.Date) ([]calendar.LeaveMark, error) {
	var out []calendar.LeaveMark
	for _, m := range s {
		if m.Key.Date.Before(from) || m.Key.Date.After(to) {
			continue
		}
		for _, id := range ids {
			if id == m.Key.EmployeeID {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }
