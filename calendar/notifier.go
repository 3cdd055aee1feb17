/*
notifier.go - Change fan-out to connected viewers

PURPOSE:
  Every committed mutation emits exactly one Event. Subscribers join a
  Scope (one team, or every team) and only see events tagged for it.

DELIVERY GUARANTEES:
  - Events of the same slot arrive in commit order: publishers call
    Publish while still holding the slot lock, and Bus enqueues in call order.
  - No ordering across different slots or employees.
  - At-most-once per subscriber. A full buffer drops the event; a viewer
    that missed events re-fetches its view instead of replaying a log.
  - Publish never blocks the mutation that triggered it.

IMPLEMENTATIONS:
  - Bus:         in-process fan-out (tests, single node, websocket source)
  - NopNotifier: discards everything

SEE ALSO:
  - api/stream.go: websocket transport on top of Bus
*/
package calendar

import (
	"sync"
	"time"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventAssignmentCreated   EventType = "assignment.created"
	EventAssignmentMoved     EventType = "assignment.moved"
	EventAssignmentReordered EventType = "assignment.reordered"
	EventAssignmentUpdated   EventType = "assignment.updated"
	EventAssignmentDeleted   EventType = "assignment.deleted"
	EventLeaveSubmitted      EventType = "leave.submitted"
	EventLeaveApproved       EventType = "leave.approved"
	EventLeaveRejected       EventType = "leave.rejected"
	EventLeaveDeleted        EventType = "leave.deleted"
)

type Event struct {
	Type       EventType  `json:"type"`
	EmployeeID EmployeeID `json:"employee_id"`
	TeamID     TeamID     `json:"team_id"`

	// Set on moves that change employee.
	PreviousEmployeeID EmployeeID `json:"previous_employee_id,omitempty"`
	PreviousTeamID     TeamID     `json:"previous_team_id,omitempty"`

	// Slots whose content changed. Viewers re-fetch the days they cover.
	Slots []SlotRef `json:"slots,omitempty"`

	AssignmentID AssignmentID `json:"assignment_id,omitempty"`
	LeaveID      string       `json:"leave_id,omitempty"`
	ActorID      string       `json:"actor_id,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// SlotRef is the wire form of a SlotKey.
type SlotRef struct {
	EmployeeID EmployeeID `json:"employee_id"`
	Date       Date       `json:"date"`
	Slot       Slot       `json:"slot"`
}

func refOf(k SlotKey) SlotRef { return SlotRef{EmployeeID: k.EmployeeID, Date: k.Date, Slot: k.Slot} }

// SlotRefs converts keys to their wire form.
func SlotRefs(keys ...SlotKey) []SlotRef {
	refs := make([]SlotRef, len(keys))
	for i, k := range keys {
		refs[i] = refOf(k)
	}
	return refs
}

// =============================================================================
// SCOPE - Visibility capability resolved once per viewer
// =============================================================================

type Scope struct {
	AllTeams bool   `json:"all_teams"`
	TeamID   TeamID `json:"team_id,omitempty"`
}

func GlobalScope() Scope { return Scope{AllTeams: true} }

func TeamScope(team TeamID) Scope { return Scope{TeamID: team} }

func (s Scope) Includes(t TeamID) bool {
	return s.AllTeams || (t != "" && s.TeamID == t)
}

// Matches reports whether an event is visible in the scope.
func (s Scope) Matches(e Event) bool {
	return s.Includes(e.TeamID) || (e.PreviousTeamID != "" && s.Includes(e.PreviousTeamID))
}

// =============================================================================
// NOTIFIER
// =============================================================================

type Notifier interface {
	Publish(e Event)
}

type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}

// =============================================================================
// BUS - In-process publish/subscribe
// =============================================================================

const defaultSubscriberBuffer = 64

type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// NewBus creates a bus whose subscribers buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

type Subscription struct {
	Scope Scope
	C     <-chan Event

	ch      chan Event
	bus     *Bus
	once    sync.Once
	dropped int
}

// Subscribe joins scope. The caller must Close the subscription.
func (b *Bus) Subscribe(scope Scope) *Subscription {
	ch := make(chan Event, b.buffer)
	s := &Subscription{Scope: scope, C: ch, ch: ch, bus: b}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Close leaves the bus and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Dropped returns how many events this subscriber lost to a full buffer.
func (s *Subscription) Dropped() int {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	return s.dropped
}

// Publish enqueues e for every matching subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !s.Scope.Matches(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped++
		}
	}
}

// Close ends every subscription. Streams reading C see it closed.
func (b *Bus) Close() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.Close()
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
