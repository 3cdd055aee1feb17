/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates employees, reference data,
	assignments and leave for the current week. Everything goes through
	the assignment service and leave coordinator, so capacity rules,
	layout and balances apply exactly as they do for real traffic.

AVAILABLE SCENARIOS:

	small-team:    Two teams, a handful of assignments this week
	busy-week:     Full and overbooked slots, reordered items
	leave-season:  Approved, pending and rejected leave with balances

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create employees and reference data
 3. Seed allocations for the current year
 4. Place assignments and submit/review leave as the system actor

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-week"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - factory/allocation.go: Allocation templates used for seeding
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "Two teams with a few assignments spread over the week",
	},
	{
		ID:          "busy-week",
		Name:        "Busy Week",
		Description: "Full slots, one overbooked afternoon and a reordered morning",
	},
	{
		ID:          "leave-season",
		Name:        "Leave Season",
		Description: "Approved, pending and rejected leave with yearly balances",
	},
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"small-team":   h.loadSmallTeamScenario,
		"busy-week":    h.loadBusyWeekScenario,
		"leave-season": h.loadLeaveSeasonScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the store and loads a predefined scenario. Admin only.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if actor.Role != calendar.RoleAdmin {
		h.writeDomainError(w, r, &calendar.ForbiddenError{ActorID: actor.ID, Action: "load scenarios"})
		return
	}
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data. Admin only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if actor.Role != calendar.RoleAdmin {
		h.writeDomainError(w, r, &calendar.ForbiddenError{ActorID: actor.ID, Action: "reset the database"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// week returns the weekdays of the current week. On weekends it is the
// coming week.
func (h *Handler) week() []calendar.Date {
	monday := calendar.Today(h.Now()).NextWorkday().MondayOf()
	return calendar.Workdays(monday, monday.AddDays(4))
}

func (h *Handler) loadSmallTeamScenario(ctx context.Context) error {
	if err := h.seedPeople(ctx); err != nil {
		return err
	}
	days := h.week()

	placements := []struct {
		emp     calendar.EmployeeID
		day     int
		slot    calendar.Slot
		title   string
		project string
		hours   *int
	}{
		{"emp-ana", 0, calendar.SlotMorning, "Site survey", "proj-bridge", nil},
		{"emp-ana", 0, calendar.SlotAfternoon, "Survey report", "proj-bridge", nil},
		{"emp-ben", 0, calendar.SlotMorning, "Formwork check", "proj-harbor", nil},
		{"emp-ben", 1, calendar.SlotMorning, "Rebar delivery", "proj-harbor", intPtr(1)},
		{"emp-ben", 1, calendar.SlotMorning, "Crane booking", "proj-harbor", intPtr(1)},
		{"emp-cleo", 2, calendar.SlotAfternoon, "Client walkthrough", "proj-bridge", nil},
		{"emp-dan", 3, calendar.SlotMorning, "Timesheets", "", nil},
	}
	for _, p := range placements {
		_, err := h.Assignments.Create(ctx, calendar.SystemActor, calendar.CreateInput{
			EmployeeID: p.emp,
			Date:       days[p.day],
			Slot:       p.slot,
			Payload: calendar.Payload{
				Task:          calendar.TaskRef{Title: p.title, ProjectID: p.project, TaskTypeID: "tt-site"},
				DurationHours: p.hours,
			},
		})
		if err != nil {
			return fmt.Errorf("place %q: %w", p.title, err)
		}
	}
	return nil
}

func (h *Handler) loadBusyWeekScenario(ctx context.Context) error {
	if err := h.seedPeople(ctx); err != nil {
		return err
	}
	days := h.week()

	// Ana's Monday morning is exactly full.
	var morning []*calendar.Assignment
	for i, title := range []string{"Stand-up", "Permit review", "Supplier call", "Safety briefing"} {
		a, err := h.place(ctx, "emp-ana", days[0], calendar.SlotMorning, title, calendar.PriorityNormal, false)
		if err != nil {
			return fmt.Errorf("place morning item %d: %w", i, err)
		}
		morning = append(morning, a)
	}
	// The briefing is urgent and moves to the top.
	if _, err := h.Assignments.Reorder(ctx, calendar.SystemActor, morning[3].ID, 0); err != nil {
		return err
	}

	// Ben's Tuesday afternoon is overbooked by an admin override.
	for _, title := range []string{"Pour slab", "Inspect pour", "Cure check", "Clean-up", "Handover"} {
		if _, err := h.place(ctx, "emp-ben", days[1], calendar.SlotAfternoon, title, calendar.PriorityHigh, true); err != nil {
			return err
		}
	}

	// Cleo has a regular week.
	for i, d := range days {
		if _, err := h.place(ctx, "emp-cleo", d, calendar.SlotMorning, fmt.Sprintf("Drawing set %d", i+1), calendar.PriorityLow, false); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadLeaveSeasonScenario(ctx context.Context) error {
	if err := h.seedPeople(ctx); err != nil {
		return err
	}
	days := h.week()
	year := days[0].Year

	if _, err := h.Leave.EnsureAllocations(ctx, year); err != nil {
		return err
	}
	// Dan has almost used up his annual leave.
	if _, err := h.Leave.SetAllocation(ctx, calendar.SystemActor, leave.Allocation{
		EmployeeID: "emp-dan",
		Year:       year,
		Annual:     leave.Balance{Total: decimal.NewFromInt(1)},
		Sick:       leave.Balance{Total: decimal.NewFromInt(10)},
		Other:      leave.Balance{Total: decimal.NewFromInt(5)},
	}); err != nil {
		return err
	}

	// Ana: approved two-day holiday.
	ana, err := h.Leave.Submit(ctx, calendar.SystemActor, leave.SubmitInput{
		EmployeeID: "emp-ana", From: days[1], To: days[2], Type: leave.TypeAnnual, Reason: "Family visit",
	})
	if err != nil {
		return err
	}
	if _, err := h.Leave.Approve(ctx, calendar.SystemActor, ana.ID); err != nil {
		return err
	}

	// Ben: approved half day, with work booked in the other half.
	ben, err := h.Leave.Submit(ctx, calendar.SystemActor, leave.SubmitInput{
		EmployeeID: "emp-ben", From: days[0], Type: leave.TypeOther, Hours: leave.HalfDayHours, Slot: calendar.SlotMorning,
	})
	if err != nil {
		return err
	}
	if _, err := h.Leave.Approve(ctx, calendar.SystemActor, ben.ID); err != nil {
		return err
	}
	for _, title := range []string{"Snag list", "Handover notes", "Client call"} {
		if _, err := h.place(ctx, "emp-ben", days[0], calendar.SlotMorning, title, calendar.PriorityNormal, false); err != nil {
			return err
		}
	}

	// Cleo: pending sick day.
	if _, err := h.Leave.Submit(ctx, calendar.SystemActor, leave.SubmitInput{
		EmployeeID: "emp-cleo", From: days[3], Type: leave.TypeSick,
	}); err != nil {
		return err
	}

	// Dan: request exceeding the balance, rejected.
	dan, err := h.Leave.Submit(ctx, calendar.SystemActor, leave.SubmitInput{
		EmployeeID: "emp-dan", From: days[0], To: days[4], Type: leave.TypeAnnual, Reason: "Road trip",
	})
	if err != nil {
		return err
	}
	_, err = h.Leave.Reject(ctx, calendar.SystemActor, dan.ID, "Not enough annual leave left")
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// seedPeople creates the shared cast of every scenario.
func (h *Handler) seedPeople(ctx context.Context) error {
	employees := []calendar.Employee{
		{ID: "emp-ana", Name: "Ana Ortiz", TeamID: "team-north", Active: true},
		{ID: "emp-ben", Name: "Ben Okafor", TeamID: "team-north", Active: true},
		{ID: "emp-cleo", Name: "Cleo Martin", TeamID: "team-south", Active: true},
		{ID: "emp-dan", Name: "Dan Weiss", TeamID: "team-south", Active: true},
	}
	for _, e := range employees {
		if err := h.Store.SaveEmployee(ctx, e); err != nil {
			return err
		}
	}

	refs := []calendar.Reference{
		{Kind: calendar.RefClient, ID: "client-city", Name: "City Works", Color: "#1f6feb"},
		{Kind: calendar.RefProject, ID: "proj-bridge", Name: "River Bridge", Color: "#2da44e"},
		{Kind: calendar.RefProject, ID: "proj-harbor", Name: "Harbor Wall"},
		{Kind: calendar.RefTaskType, ID: "tt-site", Name: "Site work"},
	}
	for _, ref := range refs {
		if err := h.Store.SaveReference(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) place(ctx context.Context, emp calendar.EmployeeID, d calendar.Date, slot calendar.Slot, title string, p calendar.Priority, overbook bool) (*calendar.Assignment, error) {
	return h.Assignments.Create(ctx, calendar.SystemActor, calendar.CreateInput{
		EmployeeID: emp,
		Date:       d,
		Slot:       slot,
		Payload: calendar.Payload{
			Task:     calendar.TaskRef{Title: title, ProjectID: "proj-bridge", ClientID: "client-city"},
			Priority: p,
		},
		AllowOverbook: overbook,
	})
}

func intPtr(v int) *int { return &v }
