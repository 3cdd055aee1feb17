package calendar

import "context"

// =============================================================================
// ACTOR & AUTHORIZATION - Identity collaborator contract
// =============================================================================

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Actor is whoever issues a request. Authentication happens upstream.
type Actor struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	TeamID TeamID `json:"team_id,omitempty"`
}

// SystemActor is used by schedulers and demo loaders.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

// Authorizer is the boolean gate checked before every write.
type Authorizer interface {
	// CanMutate reports whether actor may change employee's schedule.
	CanMutate(ctx context.Context, actor Actor, employee Employee) bool

	// CanOverbook reports whether actor may place past SlotCapacity.
	CanOverbook(ctx context.Context, actor Actor) bool

	// CanReview reports whether actor may approve or reject employee's leave.
	CanReview(ctx context.Context, actor Actor, employee Employee) bool
}

// RoleAuthorizer is the default policy:
//   - admins act on everyone
//   - managers act on their own team
//   - members act on their own schedule and never review
type RoleAuthorizer struct{}

func (RoleAuthorizer) CanMutate(_ context.Context, actor Actor, employee Employee) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return actor.TeamID != "" && actor.TeamID == employee.TeamID
	default:
		return actor.ID != "" && actor.ID == string(employee.ID)
	}
}

func (RoleAuthorizer) CanOverbook(_ context.Context, actor Actor) bool {
	return actor.Role == RoleAdmin
}

func (RoleAuthorizer) CanReview(_ context.Context, actor Actor, employee Employee) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return actor.TeamID != "" && actor.TeamID == employee.TeamID && actor.ID != string(employee.ID)
	}
	return false
}

// ScopeFor resolves the view capability of an actor once: admins see every
// team, everyone else sees their own.
func ScopeFor(actor Actor) Scope {
	if actor.Role == RoleAdmin {
		return GlobalScope()
	}
	return TeamScope(actor.TeamID)
}
