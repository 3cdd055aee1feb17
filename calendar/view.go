package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// VIEW - Read model for one calendar range
// =============================================================================

type ViewRequest struct {
	Anchor      Date
	Granularity Granularity
	Scope       Scope
}

type View struct {
	Anchor      Date           `json:"anchor"`
	Granularity Granularity    `json:"granularity"`
	Days        []GridDay      `json:"days"`
	Employees   []EmployeeView `json:"employees"`
}

type EmployeeView struct {
	EmployeeID EmployeeID `json:"employee_id"`
	Name       string     `json:"name"`
	TeamID     TeamID     `json:"team_id"`
	Days       []DayView  `json:"days"`
}

type DayView struct {
	Date      Date     `json:"date"`
	Morning   SlotView `json:"morning"`
	Afternoon SlotView `json:"afternoon"`
}

type SlotView struct {
	Tasks             []AssignmentView `json:"tasks"`
	AvailableCapacity int              `json:"available_capacity"`
	IsOverbooked      bool             `json:"is_overbooked"`
	Leave             *LeaveMark       `json:"leave,omitempty"`
}

type AssignmentView struct {
	Assignment
	TaskDisplay
	Hours int `json:"hours"`
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler builds views. It is read-only and never takes slot locks, so a
// view may trail a concurrent mutation by one event.
type Assembler struct {
	Repo      Repository
	Leaves    LeaveSource
	Directory Directory
	Catalog   Catalog
	Now       func() time.Time
}

func (a *Assembler) GetView(ctx context.Context, req ViewRequest) (*View, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	if req.Granularity == "" {
		req.Granularity = GranularityWeek
	}
	if !req.Granularity.Valid() {
		return nil, &ValidationError{Field: "granularity", Message: fmt.Sprintf("unknown granularity %q", req.Granularity)}
	}
	if req.Anchor.IsZero() {
		req.Anchor = Today(now())
	}

	grid := Expand(req.Anchor, req.Granularity, Today(now()))
	view := &View{Anchor: req.Anchor, Granularity: req.Granularity, Days: grid.Days, Employees: []EmployeeView{}}

	employees, err := a.Directory.ListEmployees(ctx, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	if len(employees) == 0 || len(grid.Days) == 0 {
		return view, nil
	}
	ids := make([]EmployeeID, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
	}

	var (
		assignments []Assignment
		marks       []LeaveMark
		display     map[TaskRef]TaskDisplay
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = a.Repo.AssignmentsInRange(gctx, ids, grid.Start(), grid.End())
		if err != nil {
			return fmt.Errorf("failed to load assignments: %w", err)
		}
		if a.Catalog == nil {
			return nil
		}
		// Display fields depend on the refs just loaded.
		display, err = a.Catalog.ResolveTasks(gctx, uniqueRefs(assignments))
		if err != nil {
			return fmt.Errorf("failed to resolve tasks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if a.Leaves == nil {
			return nil
		}
		var err error
		marks, err = a.Leaves.LeaveMarks(gctx, ids, grid.Start(), grid.End())
		if err != nil {
			return fmt.Errorf("failed to load leave: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bySlot := make(map[SlotKey][]Assignment)
	for _, as := range assignments {
		bySlot[as.Key()] = append(bySlot[as.Key()], as)
	}
	leaveBySlot := make(map[SlotKey]LeaveMark)
	for _, m := range marks {
		// An approved mark wins over a pending one on the same slot.
		if prev, ok := leaveBySlot[m.Key]; ok && prev.Approved {
			continue
		}
		leaveBySlot[m.Key] = m
	}

	for _, e := range employees {
		ev := EmployeeView{EmployeeID: e.ID, Name: e.Name, TeamID: e.TeamID, Days: make([]DayView, 0, len(grid.Days))}
		for _, d := range grid.Days {
			ev.Days = append(ev.Days, DayView{
				Date:      d.Date,
				Morning:   buildSlot(SlotKey{EmployeeID: e.ID, Date: d.Date, Slot: SlotMorning}, bySlot, leaveBySlot, display),
				Afternoon: buildSlot(SlotKey{EmployeeID: e.ID, Date: d.Date, Slot: SlotAfternoon}, bySlot, leaveBySlot, display),
			})
		}
		view.Employees = append(view.Employees, ev)
	}
	return view, nil
}

func buildSlot(key SlotKey, bySlot map[SlotKey][]Assignment, leaves map[SlotKey]LeaveMark, display map[TaskRef]TaskDisplay) SlotView {
	items := Relayout(bySlot[key])

	sv := SlotView{Tasks: make([]AssignmentView, 0, len(items))}
	for _, it := range items {
		sv.Tasks = append(sv.Tasks, AssignmentView{Assignment: it, TaskDisplay: display[it.Task], Hours: it.Hours()})
	}

	occupied := false
	if m, ok := leaves[key]; ok {
		mark := m
		sv.Leave = &mark
		occupied = m.Approved
	}
	snap := NewSnapshot(key, len(items), occupied)
	sv.AvailableCapacity = snap.Available
	sv.IsOverbooked = snap.Overbooked
	return sv
}

func uniqueRefs(items []Assignment) []TaskRef {
	seen := make(map[TaskRef]bool)
	refs := make([]TaskRef, 0)
	for _, it := range items {
		if !seen[it.Task] {
			seen[it.Task] = true
			refs = append(refs, it.Task)
		}
	}
	return refs
}
