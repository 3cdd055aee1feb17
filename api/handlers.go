/*
handlers.go - HTTP API handlers for the calendar engine

PURPOSE:
  Exposes assignments, leave and calendar views via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the calendar and
  leave packages. No business rule lives here.

ENDPOINTS:
  Calendar:
    GET    /api/calendar                     Week/day/biweek/month view
    GET    /api/capacity                     Occupancy of one slot

  Assignments:
    POST   /api/assignments                  Create
    POST   /api/assignments/bulk             Bulk field update
    GET    /api/assignments/{id}             Get
    PUT    /api/assignments/{id}             Update fields
    POST   /api/assignments/{id}/move        Move to another slot
    POST   /api/assignments/{id}/reorder     Change rank within the slot
    DELETE /api/assignments/{id}             Soft delete

  Leave:
    POST   /api/leave                        Submit
    GET    /api/leave                        List
    POST   /api/leave/{id}/approve           Approve
    POST   /api/leave/{id}/reject            Reject
    DELETE /api/leave/{id}                   Delete (refunds approved leave)

  Reference data:
    GET/POST /api/employees                  Employees
    GET/PUT  /api/employees/{id}/allocations/{year}
    POST     /api/references                 Clients, projects, task types

ACTOR:
  Every request names its actor in X-Actor-ID, X-Actor-Role and
  X-Actor-Team. Authentication happens in front of this service.

ERROR HANDLING:
  Domain errors map to HTTP status by sentinel:
  - 400: Validation errors, invalid input
  - 401: Missing actor
  - 403: Authorizer refused
  - 404: Resource not found
  - 409: Slot full, invalid leave transition, concurrent modification
  - 422: Insufficient leave balance
  - 500: Invariant violations and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - stream.go: Websocket change feed
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API needs from a backend. store/memory,
// store/sqlite and store/postgres all satisfy it.
type Store interface {
	calendar.TxRepository
	leave.TxRepository
	calendar.Directory
	calendar.Catalog
	SaveEmployee(ctx context.Context, e calendar.Employee) error
	SaveReference(ctx context.Context, r calendar.Reference) error
	Reset(ctx context.Context) error
}

// Options configures NewHandler. Zero values select defaults.
type Options struct {
	Bus       *calendar.Bus
	Templates leave.TemplateSource
	Logger    *zap.Logger
	Now       func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Assignments *calendar.AssignmentService
	Leave       *leave.Coordinator
	Views       *calendar.Assembler
	Bus         *calendar.Bus
	Logger      *zap.Logger
	Now         func() time.Time

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engine services around one store. Assignments and
// leave share a single lock table so capacity checks see each other.
func NewHandler(store Store, opts Options) *Handler {
	if opts.Bus == nil {
		opts.Bus = calendar.NewBus(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Templates == nil {
		opts.Templates = leave.DefaultTemplate
	}

	locks := calendar.NewSlotLocks()
	coordinator := &leave.Coordinator{
		Repo:        store,
		Assignments: store,
		Directory:   store,
		Notifier:    opts.Bus,
		Locks:       locks,
		Templates:   opts.Templates,
		Logger:      opts.Logger.Named("leave"),
		Now:         opts.Now,
	}
	return &Handler{
		Store: store,
		Assignments: &calendar.AssignmentService{
			Repo:      store,
			Leaves:    coordinator,
			Directory: store,
			Notifier:  opts.Bus,
			Locks:     locks,
			Logger:    opts.Logger.Named("assignments"),
			Now:       opts.Now,
		},
		Leave: coordinator,
		Views: &calendar.Assembler{
			Repo:      store,
			Leaves:    coordinator,
			Directory: store,
			Catalog:   store,
			Now:       opts.Now,
		},
		Bus:      opts.Bus,
		Logger:   opts.Logger,
		Now:      opts.Now,
		validate: validator.New(),
	}
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// GetCalendar returns the view visible to the actor. Admins may narrow it
// to one team with ?team=.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var anchor calendar.Date
	if s := q.Get("anchor"); s != "" {
		d, err := parseDate("anchor", s)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		anchor = d
	}
	granularity, err := calendar.ParseGranularity(q.Get("granularity"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	scope := calendar.ScopeFor(actor)
	if team := q.Get("team"); team != "" && scope.AllTeams {
		scope = calendar.TeamScope(calendar.TeamID(team))
	}

	view, err := h.Views.GetView(r.Context(), calendar.ViewRequest{Anchor: anchor, Granularity: granularity, Scope: scope})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetCapacity returns the occupancy of one slot.
func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	key, err := parseKey(q.Get("employee_id"), q.Get("date"), q.Get("slot"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	snap, err := h.Assignments.Capacity(r.Context(), actor, key)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CapacityDTO{
		EmployeeID: string(key.EmployeeID),
		Date:       key.Date,
		Slot:       key.Slot,
		Snapshot:   snap,
	})
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateAssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	key, err := parseKey(req.EmployeeID, req.Date, req.Slot)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	payload := calendar.Payload{
		Task:          req.Task,
		Priority:      calendar.Priority(req.Priority),
		Status:        calendar.Status(req.Status),
		Notes:         req.Notes,
		DurationHours: req.DurationHours,
	}
	if req.DueDate != "" {
		due, err := parseDate("due_date", req.DueDate)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		payload.DueDate = &due
	}

	a, err := h.Assignments.Create(r.Context(), actor, calendar.CreateInput{
		EmployeeID:    key.EmployeeID,
		Date:          key.Date,
		Slot:          key.Slot,
		Payload:       payload,
		AllowOverbook: req.AllowOverbook,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	a, err := h.Assignments.Get(r.Context(), actor, calendar.AssignmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UpdateAssignment changes payload fields only. Placement goes through
// move and reorder.
func (h *Handler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var u calendar.FieldUpdate
	if !h.decode(w, r, &u) {
		return
	}
	a, err := h.Assignments.Update(r.Context(), actor, calendar.AssignmentID(chi.URLParam(r, "id")), u)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) MoveAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req MoveAssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	key, err := parseKey(req.EmployeeID, req.Date, req.Slot)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	a, err := h.Assignments.Move(r.Context(), actor, calendar.MoveInput{
		ID:            calendar.AssignmentID(chi.URLParam(r, "id")),
		EmployeeID:    key.EmployeeID,
		Date:          key.Date,
		Slot:          key.Slot,
		AllowOverbook: req.AllowOverbook,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) ReorderAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ReorderRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.Assignments.Reorder(r.Context(), actor, calendar.AssignmentID(chi.URLParam(r, "id")), *req.Rank)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.Assignments.Delete(r.Context(), actor, calendar.AssignmentID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// BulkUpdate reports per-id outcomes. The response is 200 even when some
// ids failed; the client inspects "failed".
func (h *Handler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req BulkUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	ids := make([]calendar.AssignmentID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = calendar.AssignmentID(id)
	}

	result, err := h.Assignments.BulkUpdate(r.Context(), actor, ids, req.Update)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := result.Err(); err != nil {
		h.Logger.Info("bulk update partially failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("failed", len(result.Failed)),
			zap.Error(err))
	}

	resp := BulkUpdateResponse{
		Updated: result.Updated,
		Failed:  make([]BatchFailureDTO, len(result.Failed)),
	}
	if resp.Updated == nil {
		resp.Updated = []calendar.Assignment{}
	}
	for i, f := range result.Failed {
		resp.Failed[i] = BatchFailureDTO{ID: string(f.ID), Error: f.Err.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req SubmitLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := leave.SubmitInput{
		EmployeeID: calendar.EmployeeID(req.EmployeeID),
		Type:       leave.Type(req.Type),
		Hours:      req.Hours,
		Reason:     req.Reason,
	}
	var err error
	if in.From, err = parseDate("from", req.From); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	in.To = in.From
	if req.To != "" {
		if in.To, err = parseDate("to", req.To); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	if req.Slot != "" {
		if in.Slot, err = calendar.ParseSlot(req.Slot); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	rec, err := h.Leave.Submit(r.Context(), actor, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListLeave returns records of employees visible to the actor.
func (h *Handler) ListLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := leave.Filter{Status: leave.Status(q.Get("status"))}
	var err error
	if s := q.Get("from"); s != "" {
		if f.From, err = parseDate("from", s); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if f.To, err = parseDate("to", s); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	visible, err := h.Store.ListEmployees(r.Context(), calendar.ScopeFor(actor))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	allowed := make(map[calendar.EmployeeID]bool, len(visible))
	for _, e := range visible {
		allowed[e.ID] = true
	}
	if s := q.Get("employee_id"); s != "" {
		for _, id := range strings.Split(s, ",") {
			if allowed[calendar.EmployeeID(id)] {
				f.EmployeeIDs = append(f.EmployeeIDs, calendar.EmployeeID(id))
			}
		}
	} else {
		for _, e := range visible {
			f.EmployeeIDs = append(f.EmployeeIDs, e.ID)
		}
	}
	if len(f.EmployeeIDs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"leave": []leave.Record{}})
		return
	}

	records, err := h.Leave.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []leave.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leave": records})
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	rec, err := h.Leave.Approve(r.Context(), actor, leave.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ReviewLeaveRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Leave.Reject(r.Context(), actor, leave.RecordID(chi.URLParam(r, "id")), req.Note)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.Leave.Delete(r.Context(), actor, leave.RecordID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// GetAllocation seeds a missing allocation from the template, so it is
// gated like the other allocation writes.
func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	alloc, err := h.Leave.Allocation(r.Context(), actor, calendar.EmployeeID(chi.URLParam(r, "id")), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

func (h *Handler) SetAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	var req SetAllocationRequest
	if !h.decode(w, r, &req) {
		return
	}

	alloc, err := h.Leave.SetAllocation(r.Context(), actor, leave.Allocation{
		EmployeeID: calendar.EmployeeID(chi.URLParam(r, "id")),
		Year:       year,
		Annual:     leave.Balance{Total: req.Annual},
		Sick:       leave.Balance{Total: req.Sick},
		Other:      leave.Balance{Total: req.Other},
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

// EnsureAllocations seeds the given year for every active employee. The
// scheduler calls the same operation on its cron schedule.
func (h *Handler) EnsureAllocations(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if actor.Role != calendar.RoleAdmin {
		h.writeDomainError(w, r, &calendar.ForbiddenError{ActorID: actor.ID, Action: "seed allocations"})
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	created, err := h.Leave.EnsureAllocations(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "created": created})
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListEmployees returns active employees visible to the actor.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	employees, err := h.Store.ListEmployees(r.Context(), calendar.ScopeFor(actor))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if employees == nil {
		employees = []calendar.Employee{}
	}
	writeJSON(w, http.StatusOK, employees)
}

// CreateEmployee creates or updates an employee. Admin only.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if actor.Role != calendar.RoleAdmin {
		h.writeDomainError(w, r, &calendar.ForbiddenError{ActorID: actor.ID, Action: "manage employees"})
		return
	}
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp := calendar.Employee{
		ID:     calendar.EmployeeID(req.ID),
		Name:   req.Name,
		TeamID: calendar.TeamID(req.TeamID),
		Active: req.Active == nil || *req.Active,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

// CreateReference creates or updates a client, project or task type. Admin only.
func (h *Handler) CreateReference(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if actor.Role != calendar.RoleAdmin {
		h.writeDomainError(w, r, &calendar.ForbiddenError{ActorID: actor.ID, Action: "manage reference data"})
		return
	}
	var req CreateReferenceRequest
	if !h.decode(w, r, &req) {
		return
	}

	ref := calendar.Reference{Kind: calendar.RefKind(req.Kind), ID: req.ID, Name: req.Name, Color: req.Color}
	if err := h.Store.SaveReference(r.Context(), ref); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// =============================================================================
// HELPERS
// =============================================================================

// actor reads the request identity headers. It writes the error response
// itself and reports false when the request must stop.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (calendar.Actor, bool) {
	actor, err := actorFromHeaders(r.Header)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Missing or invalid actor", err)
		return calendar.Actor{}, false
	}
	return actor, true
}

func actorFromHeaders(hdr http.Header) (calendar.Actor, error) {
	actor := calendar.Actor{
		ID:     hdr.Get("X-Actor-ID"),
		Role:   calendar.Role(hdr.Get("X-Actor-Role")),
		TeamID: calendar.TeamID(hdr.Get("X-Actor-Team")),
	}
	if actor.ID == "" {
		return actor, errors.New("X-Actor-ID header is required")
	}
	switch actor.Role {
	case "":
		actor.Role = calendar.RoleMember
	case calendar.RoleAdmin, calendar.RoleManager, calendar.RoleMember:
	default:
		return actor, fmt.Errorf("unknown role %q", actor.Role)
	}
	return actor, nil
}

func parseKey(employeeID, date, slot string) (calendar.SlotKey, error) {
	if employeeID == "" {
		return calendar.SlotKey{}, &calendar.ValidationError{Field: "employee_id", Message: "is required"}
	}
	d, err := parseDate("date", date)
	if err != nil {
		return calendar.SlotKey{}, err
	}
	s, err := calendar.ParseSlot(slot)
	if err != nil {
		return calendar.SlotKey{}, err
	}
	return calendar.SlotKey{EmployeeID: calendar.EmployeeID(employeeID), Date: d, Slot: s}, nil
}

// parseDate reports a malformed date as a validation error on field.
func parseDate(field, s string) (calendar.Date, error) {
	d, err := calendar.ParseDate(s)
	if err != nil {
		return calendar.Date{}, &calendar.ValidationError{Field: field, Message: err.Error()}
	}
	return d, nil
}

// decode reads and validates a JSON body. It writes the error response
// itself and reports false when the request must stop.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, calendar.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, calendar.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, calendar.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, calendar.ErrCapacity):
		return http.StatusConflict, "capacity"
	case errors.Is(err, leave.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, leave.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, calendar.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
