package calendar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// LAYOUT CALCULATOR TESTS
// =============================================================================

func TestLayoutFor_Patterns(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  []calendar.Layout
	}{
		{"single item fills the slot", 1, []calendar.Layout{
			{ColumnStart: 0, Row: 0, Column: 0, Width: 2, Height: 2},
		}},
		{"two halves", 2, []calendar.Layout{
			{ColumnStart: 0, Row: 0, Column: 0, Width: 1, Height: 2},
			{ColumnStart: 1, Row: 0, Column: 1, Width: 1, Height: 2},
		}},
		{"two top one bottom", 3, []calendar.Layout{
			{ColumnStart: 0, Row: 0, Column: 0, Width: 1, Height: 1},
			{ColumnStart: 1, Row: 0, Column: 1, Width: 1, Height: 1},
			{ColumnStart: 2, Row: 1, Column: 0, Width: 2, Height: 1},
		}},
		{"quadrants", 4, []calendar.Layout{
			{ColumnStart: 0, Row: 0, Column: 0, Width: 1, Height: 1},
			{ColumnStart: 1, Row: 0, Column: 1, Width: 1, Height: 1},
			{ColumnStart: 2, Row: 1, Column: 0, Width: 1, Height: 1},
			{ColumnStart: 3, Row: 1, Column: 1, Width: 1, Height: 1},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for order, want := range tc.want {
				assert.Equal(t, want, calendar.LayoutFor(order, tc.count), "order %d", order)
			}
		})
	}
}

func TestLayout_HoursShareTheSlot(t *testing.T) {
	for count := 1; count <= calendar.SlotCapacity; count++ {
		total := 0
		for order := 0; order < count; order++ {
			total += calendar.LayoutFor(order, count).Hours()
		}
		assert.Equal(t, calendar.SlotHours, total, "count %d", count)
	}
}

func TestRelayout_ClosesGapsStably(t *testing.T) {
	k := calendar.SlotKey{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning}
	items := []calendar.Assignment{
		{ID: "c", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, SlotOrder: 7, IsActive: true},
		{ID: "a", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, SlotOrder: 0, IsActive: true},
		{ID: "b", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, SlotOrder: 2, IsActive: true},
	}

	out := calendar.Relayout(items)

	require.NoError(t, calendar.CheckSlot(k, out))
	ids := []calendar.AssignmentID{out[0].ID, out[1].ID, out[2].ID}
	assert.Equal(t, []calendar.AssignmentID{"a", "b", "c"}, ids)
	assert.Equal(t, 2, out[2].Layout.Width)
}

func TestCheckSlot_DetectsBrokenState(t *testing.T) {
	k := calendar.SlotKey{EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning}
	ok := calendar.Relayout([]calendar.Assignment{
		{ID: "a", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, IsActive: true},
		{ID: "b", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, SlotOrder: 1, IsActive: true},
	})
	require.NoError(t, calendar.CheckSlot(k, ok))

	gap := append([]calendar.Assignment(nil), ok...)
	gap[1].SlotOrder = 2
	assert.ErrorIs(t, calendar.CheckSlot(k, gap), calendar.ErrInvariant)

	dup := append([]calendar.Assignment(nil), ok...)
	dup[1].SlotOrder = 0
	assert.ErrorIs(t, calendar.CheckSlot(k, dup), calendar.ErrInvariant)

	stale := append([]calendar.Assignment(nil), ok...)
	stale[0].Layout = calendar.LayoutFor(0, 1)
	assert.ErrorIs(t, calendar.CheckSlot(k, stale), calendar.ErrInvariant)

	foreign := append([]calendar.Assignment(nil), ok...)
	foreign[0].Slot = calendar.SlotAfternoon
	assert.ErrorIs(t, calendar.CheckSlot(k, foreign), calendar.ErrInvariant)
}
