package calendar

import "context"

// =============================================================================
// CAPACITY SNAPSHOT - Derived, never persisted
// =============================================================================

type Snapshot struct {
	Key         SlotKey `json:"-"`
	Assignments int     `json:"assignments"`
	Leave       bool    `json:"leave"`
	Count       int     `json:"count"`
	Available   int     `json:"available"`
	Overbooked  bool    `json:"overbooked"`
}

// NewSnapshot computes occupancy for a slot. Overbooked is computed, never
// assumed false.
func NewSnapshot(key SlotKey, assignments int, leave bool) Snapshot {
	count := assignments
	if leave {
		count++
	}
	available := SlotCapacity - count
	if available < 0 {
		available = 0
	}
	return Snapshot{
		Key:         key,
		Assignments: assignments,
		Leave:       leave,
		Count:       count,
		Available:   available,
		Overbooked:  count > SlotCapacity,
	}
}

// CanPlace is the single placement rule used by every mutating path.
func (s Snapshot) CanPlace(allowOverbook bool) bool {
	return s.Count < SlotCapacity || allowOverbook
}

// =============================================================================
// LEDGER - Read-through capacity view over assignments and leave
// =============================================================================

// Ledger answers capacity questions. It holds no state of its own.
type Ledger struct {
	Repo   Repository
	Leaves LeaveSource
}

func (l *Ledger) CapacityOf(ctx context.Context, key SlotKey) (Snapshot, error) {
	items, err := l.Repo.SlotAssignments(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	leave, err := leaveOccupies(ctx, l.Leaves, key)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(key, len(items), leave), nil
}

func (l *Ledger) CanPlace(ctx context.Context, key SlotKey, allowOverbook bool) (bool, error) {
	snap, err := l.CapacityOf(ctx, key)
	if err != nil {
		return false, err
	}
	return snap.CanPlace(allowOverbook), nil
}

// leaveOccupies reports whether approved leave blocks one capacity unit of key.
func leaveOccupies(ctx context.Context, src LeaveSource, key SlotKey) (bool, error) {
	if src == nil {
		return false, nil
	}
	marks, err := src.LeaveMarks(ctx, []EmployeeID{key.EmployeeID}, key.Date, key.Date)
	if err != nil {
		return false, err
	}
	for _, m := range marks {
		if m.Key == key && m.Approved {
			return true, nil
		}
	}
	return false, nil
}
