package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// DIRECTORY - Employees
// =============================================================================

// SaveEmployee creates or updates an employee.
func (s *Store) SaveEmployee(ctx context.Context, e calendar.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, team_id, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			team_id = excluded.team_id,
			active = excluded.active`,
		string(e.ID), e.Name, string(e.TeamID), e.Active, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save employee %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id calendar.EmployeeID) (*calendar.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e calendar.Employee
	var empID, teamID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, team_id, active FROM employees WHERE id = ?`, string(id),
	).Scan(&empID, &e.Name, &teamID, &e.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "employee", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	e.ID = calendar.EmployeeID(empID)
	e.TeamID = calendar.TeamID(teamID)
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, scope calendar.Scope) ([]calendar.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, team_id, active FROM employees WHERE active = 1`
	var args []any
	if !scope.AllTeams {
		query += ` AND team_id = ?`
		args = append(args, string(scope.TeamID))
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.Employee
	for rows.Next() {
		var e calendar.Employee
		var id, teamID string
		if err := rows.Scan(&id, &e.Name, &teamID, &e.Active); err != nil {
			return nil, err
		}
		e.ID = calendar.EmployeeID(id)
		e.TeamID = calendar.TeamID(teamID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// CATALOG - Clients, projects and task types
// =============================================================================

func refTable(kind calendar.RefKind) (string, error) {
	switch kind {
	case calendar.RefClient:
		return "clients", nil
	case calendar.RefProject:
		return "projects", nil
	case calendar.RefTaskType:
		return "task_types", nil
	}
	return "", &calendar.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown reference kind %q", kind)}
}

// SaveReference creates or updates one reference row.
func (s *Store) SaveReference(ctx context.Context, r calendar.Reference) error {
	table, err := refTable(r.Kind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, name, color) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color`,
		r.ID, r.Name, r.Color)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", r.Kind, r.ID, err)
	}
	return nil
}

func (s *Store) ResolveTasks(ctx context.Context, refs []calendar.TaskRef) (map[calendar.TaskRef]calendar.TaskDisplay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := map[calendar.RefKind]map[string]bool{
		calendar.RefClient:   {},
		calendar.RefProject:  {},
		calendar.RefTaskType: {},
	}
	for _, ref := range refs {
		if ref.ClientID != "" {
			wanted[calendar.RefClient][ref.ClientID] = true
		}
		if ref.ProjectID != "" {
			wanted[calendar.RefProject][ref.ProjectID] = true
		}
		if ref.TaskTypeID != "" {
			wanted[calendar.RefTaskType][ref.TaskTypeID] = true
		}
	}

	type refKey struct {
		kind calendar.RefKind
		id   string
	}
	found := make(map[refKey]calendar.Reference)
	for kind, ids := range wanted {
		if len(ids) == 0 {
			continue
		}
		table, _ := refTable(kind)
		args := make([]any, 0, len(ids))
		for id := range ids {
			args = append(args, id)
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, name, color FROM `+table+` WHERE id IN (`+placeholders(len(args))+`)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			r := calendar.Reference{Kind: kind}
			if err := rows.Scan(&r.ID, &r.Name, &r.Color); err != nil {
				rows.Close()
				return nil, err
			}
			found[refKey{kind: kind, id: r.ID}] = r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	lookup := func(kind calendar.RefKind, id string) (calendar.Reference, bool) {
		r, ok := found[refKey{kind: kind, id: id}]
		return r, ok
	}
	out := make(map[calendar.TaskRef]calendar.TaskDisplay, len(refs))
	for _, ref := range refs {
		out[ref] = calendar.ResolveDisplay(ref, lookup)
	}
	return out, nil
}
