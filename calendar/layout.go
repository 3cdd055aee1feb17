package calendar

import (
	"fmt"
	"sort"
)

// =============================================================================
// LAYOUT - Deterministic visual partition of a slot
// =============================================================================
//
// A slot is drawn as a 2x2 cell grid:
//
//   1 item    2 items   3 items   4 items
//   ┌─────┐   ┌──┬──┐   ┌──┬──┐   ┌──┬──┐
//   │  0  │   │0 │1 │   │0 │1 │   │0 │1 │
//   │     │   │  │  │   ├──┴──┤   ├──┼──┤
//   │     │   │  │  │   │  2  │   │2 │3 │
//   └─────┘   └──┴──┘   └─────┘   └──┴──┘
//
// Cells are numbered by slotOrder. Overbooked slots (only reachable through
// an administrative override) continue the 2-column grid row by row.

const layoutColumns = 2

// Layout is the cell of one item. ColumnStart is the rank-based partition
// index (the item's slotOrder once a slot holds two or more items), not a
// column position; Row, Column, Width and Height carry the geometry.
type Layout struct {
	ColumnStart int `json:"column_start"`
	Row         int `json:"row"`
	Column      int `json:"column"`
	Width       int `json:"width"`  // columns spanned, 1..2
	Height      int `json:"height"` // rows spanned, 1..2
}

// Hours is the share of a SlotHours slot this cell covers.
func (l Layout) Hours() int {
	h := SlotHours * l.Width * l.Height / (layoutColumns * 2)
	if h < 1 {
		return 1
	}
	return h
}

// LayoutFor returns the cell of the item ranked order among count items.
func LayoutFor(order, count int) Layout {
	switch {
	case count <= 1:
		return Layout{ColumnStart: 0, Row: 0, Column: 0, Width: 2, Height: 2}
	case count == 2:
		return Layout{ColumnStart: order, Row: 0, Column: order, Width: 1, Height: 2}
	case count == 3 && order == 2:
		return Layout{ColumnStart: 2, Row: 1, Column: 0, Width: 2, Height: 1}
	default:
		return Layout{
			ColumnStart: order,
			Row:         order / layoutColumns,
			Column:      order % layoutColumns,
			Width:       1,
			Height:      1,
		}
	}
}

// Relayout sorts items by slotOrder, closes rank gaps and stamps the layout
// for the resulting count. The slice is modified in place and returned.
func Relayout(items []Assignment) []Assignment {
	sort.SliceStable(items, func(i, j int) bool { return items[i].SlotOrder < items[j].SlotOrder })
	for i := range items {
		items[i].SlotOrder = i
		items[i].Layout = LayoutFor(i, len(items))
	}
	return items
}

// CheckSlot verifies that items form a contiguous rank permutation with
// layouts matching their rank.
func CheckSlot(key SlotKey, items []Assignment) error {
	seen := make([]bool, len(items))
	for _, a := range items {
		if a.Key() != key {
			return &InvariantError{Key: key, Detail: fmt.Sprintf("assignment %s belongs to slot %s", a.ID, a.Key())}
		}
		if !a.IsActive {
			return &InvariantError{Key: key, Detail: fmt.Sprintf("assignment %s is inactive", a.ID)}
		}
		if a.SlotOrder < 0 || a.SlotOrder >= len(items) || seen[a.SlotOrder] {
			return &InvariantError{Key: key, Detail: fmt.Sprintf("slot order %d is not contiguous among %d items", a.SlotOrder, len(items))}
		}
		seen[a.SlotOrder] = true
		if a.Layout != LayoutFor(a.SlotOrder, len(items)) {
			return &InvariantError{Key: key, Detail: fmt.Sprintf("assignment %s layout does not match rank %d", a.ID, a.SlotOrder)}
		}
	}
	return nil
}
