// Package memory provides an in-memory store for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements calendar.TxRepository, leave.TxRepository,
// calendar.Directory and calendar.Catalog.
type Memory struct {
	mu          sync.RWMutex
	assignments map[calendar.AssignmentID]calendar.Assignment
	leaves      map[leave.RecordID]leave.Record
	allocations map[allocKey]leave.Allocation
	employees   map[calendar.EmployeeID]calendar.Employee
	refs        map[refKey]calendar.Reference
}

type allocKey struct {
	EmployeeID calendar.EmployeeID
	Year       int
}

type refKey struct {
	Kind calendar.RefKind
	ID   string
}

var (
	_ calendar.TxRepository = (*Memory)(nil)
	_ leave.TxRepository    = (*Memory)(nil)
	_ calendar.Directory    = (*Memory)(nil)
	_ calendar.Catalog      = (*Memory)(nil)
)

func New() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.assignments = make(map[calendar.AssignmentID]calendar.Assignment)
	m.leaves = make(map[leave.RecordID]leave.Record)
	m.allocations = make(map[allocKey]leave.Allocation)
	m.employees = make(map[calendar.EmployeeID]calendar.Employee)
	m.refs = make(map[refKey]calendar.Reference)
}

// Reset drops every row.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *Memory) Close() error { return nil }

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (m *Memory) GetAssignment(ctx context.Context, id calendar.AssignmentID) (*calendar.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).GetAssignment(ctx, id)
}

func (m *Memory) SlotAssignments(ctx context.Context, key calendar.SlotKey) ([]calendar.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).SlotAssignments(ctx, key)
}

func (m *Memory) AssignmentsInRange(ctx context.Context, ids []calendar.EmployeeID, from, to calendar.Date) ([]calendar.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).AssignmentsInRange(ctx, ids, from, to)
}

func (m *Memory) SaveAssignments(ctx context.Context, items ...calendar.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).SaveAssignments(ctx, items...)
}

// =============================================================================
// LEAVE
// =============================================================================

func (m *Memory) GetLeave(ctx context.Context, id leave.RecordID) (*leave.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).GetLeave(ctx, id)
}

func (m *Memory) SaveLeave(ctx context.Context, r leave.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).SaveLeave(ctx, r)
}

func (m *Memory) ListLeaves(ctx context.Context, f leave.Filter) ([]leave.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).ListLeaves(ctx, f)
}

func (m *Memory) GetAllocation(ctx context.Context, emp calendar.EmployeeID, year int) (*leave.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).GetAllocation(ctx, emp, year)
}

func (m *Memory) SaveAllocation(ctx context.Context, a leave.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).SaveAllocation(ctx, a)
}

func (m *Memory) ListAllocations(ctx context.Context, year int) ([]leave.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).ListAllocations(ctx, year)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e calendar.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id calendar.EmployeeID) (*calendar.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, &calendar.NotFoundError{Kind: "employee", ID: string(id)}
	}
	return &e, nil
}

func (m *Memory) ListEmployees(_ context.Context, scope calendar.Scope) ([]calendar.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calendar.Employee
	for _, e := range m.employees {
		if e.Active && scope.Includes(e.TeamID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveReference(_ context.Context, r calendar.Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[refKey{Kind: r.Kind, ID: r.ID}] = r
	return nil
}

func (m *Memory) ResolveTasks(_ context.Context, refs []calendar.TaskRef) (map[calendar.TaskRef]calendar.TaskDisplay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lookup := func(kind calendar.RefKind, id string) (calendar.Reference, bool) {
		r, ok := m.refs[refKey{Kind: kind, ID: id}]
		return r, ok
	}
	out := make(map[calendar.TaskRef]calendar.TaskDisplay, len(refs))
	for _, ref := range refs {
		out[ref] = calendar.ResolveDisplay(ref, lookup)
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx runs fn with exclusive access. Writes are applied directly and
// rolled back from a snapshot when fn fails. fn must not call back into
// the Memory itself, only into the Repository it is handed.
func (m *Memory) WithTx(_ context.Context, fn func(calendar.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn((*view)(m)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// WithLeaveTx is WithTx for leave records and allocations.
func (m *Memory) WithLeaveTx(_ context.Context, fn func(leave.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn((*view)(m)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	assignments map[calendar.AssignmentID]calendar.Assignment
	leaves      map[leave.RecordID]leave.Record
	allocations map[allocKey]leave.Allocation
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		assignments: make(map[calendar.AssignmentID]calendar.Assignment, len(m.assignments)),
		leaves:      make(map[leave.RecordID]leave.Record, len(m.leaves)),
		allocations: make(map[allocKey]leave.Allocation, len(m.allocations)),
	}
	for k, v := range m.assignments {
		s.assignments[k] = v
	}
	for k, v := range m.leaves {
		s.leaves[k] = v
	}
	for k, v := range m.allocations {
		s.allocations[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.assignments = s.assignments
	m.leaves = s.leaves
	m.allocations = s.allocations
}

// =============================================================================
// VIEW - Lock-free accessors shared by Memory and its transactions
// =============================================================================

// view operates on Memory's maps without locking. The caller holds m.mu.
type view Memory

func (v *view) GetAssignment(_ context.Context, id calendar.AssignmentID) (*calendar.Assignment, error) {
	a, ok := v.assignments[id]
	if !ok {
		return nil, &calendar.NotFoundError{Kind: "assignment", ID: string(id)}
	}
	return &a, nil
}

func (v *view) SlotAssignments(_ context.Context, key calendar.SlotKey) ([]calendar.Assignment, error) {
	out := make([]calendar.Assignment, 0, calendar.SlotCapacity)
	for _, a := range v.assignments {
		if a.IsActive && a.Key() == key {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotOrder < out[j].SlotOrder })
	return out, nil
}

func (v *view) AssignmentsInRange(_ context.Context, ids []calendar.EmployeeID, from, to calendar.Date) ([]calendar.Assignment, error) {
	want := make(map[calendar.EmployeeID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []calendar.Assignment
	for _, a := range v.assignments {
		if !a.IsActive || !want[a.EmployeeID] {
			continue
		}
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key(), out[j].Key()
		if ki != kj {
			return ki.Less(kj)
		}
		return out[i].SlotOrder < out[j].SlotOrder
	})
	return out, nil
}

// SaveAssignments applies the batch, then rejects it as a whole if any
// touched slot ends up with two active items on one rank.
func (v *view) SaveAssignments(_ context.Context, items ...calendar.Assignment) error {
	prev := make(map[calendar.AssignmentID]*calendar.Assignment, len(items))
	touched := make(map[calendar.SlotKey]bool)
	for _, a := range items {
		if _, seen := prev[a.ID]; !seen {
			if old, ok := v.assignments[a.ID]; ok {
				o := old
				prev[a.ID] = &o
				touched[old.Key()] = true
			} else {
				prev[a.ID] = nil
			}
		}
		v.assignments[a.ID] = a
		touched[a.Key()] = true
	}

	for key := range touched {
		if v.rankClash(key) {
			for id, old := range prev {
				if old == nil {
					delete(v.assignments, id)
				} else {
					v.assignments[id] = *old
				}
			}
			return calendar.ErrRankTaken
		}
	}
	return nil
}

func (v *view) rankClash(key calendar.SlotKey) bool {
	ranks := make(map[int]bool)
	for _, a := range v.assignments {
		if !a.IsActive || a.Key() != key {
			continue
		}
		if ranks[a.SlotOrder] {
			return true
		}
		ranks[a.SlotOrder] = true
	}
	return false
}

func (v *view) GetLeave(_ context.Context, id leave.RecordID) (*leave.Record, error) {
	r, ok := v.leaves[id]
	if !ok {
		return nil, &calendar.NotFoundError{Kind: "leave", ID: string(id)}
	}
	return &r, nil
}

func (v *view) SaveLeave(_ context.Context, r leave.Record) error {
	v.leaves[r.ID] = r
	return nil
}

func (v *view) ListLeaves(_ context.Context, f leave.Filter) ([]leave.Record, error) {
	var out []leave.Record
	for _, r := range v.leaves {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		if out[i].From != out[j].From {
			return out[i].From.Before(out[j].From)
		}
		return strings.Compare(string(out[i].ID), string(out[j].ID)) < 0
	})
	return out, nil
}

func (v *view) GetAllocation(_ context.Context, emp calendar.EmployeeID, year int) (*leave.Allocation, error) {
	a, ok := v.allocations[allocKey{EmployeeID: emp, Year: year}]
	if !ok {
		return nil, &calendar.NotFoundError{Kind: "allocation", ID: string(emp)}
	}
	return &a, nil
}

func (v *view) SaveAllocation(_ context.Context, a leave.Allocation) error {
	v.allocations[allocKey{EmployeeID: a.EmployeeID, Year: a.Year}] = a
	return nil
}

func (v *view) ListAllocations(_ context.Context, year int) ([]leave.Allocation, error) {
	var out []leave.Allocation
	for k, a := range v.allocations {
		if k.Year == year {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}
