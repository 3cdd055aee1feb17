package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// DIRECTORY - Employees
// =============================================================================

// SaveEmployee creates or updates an employee.
func (c *conn) SaveEmployee(ctx context.Context, e calendar.Employee) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO employees (id, name, team_id, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			team_id = EXCLUDED.team_id,
			active = EXCLUDED.active`,
		string(e.ID), e.Name, string(e.TeamID), e.Active)
	if err != nil {
		return fmt.Errorf("save employee %s: %w", e.ID, err)
	}
	return nil
}

func (c *conn) GetEmployee(ctx context.Context, id calendar.EmployeeID) (*calendar.Employee, error) {
	var e calendar.Employee
	var empID, teamID string
	err := c.q.QueryRow(ctx,
		`SELECT id, name, team_id, active FROM employees WHERE id = $1`, string(id),
	).Scan(&empID, &e.Name, &teamID, &e.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "employee", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	e.ID = calendar.EmployeeID(empID)
	e.TeamID = calendar.TeamID(teamID)
	return &e, nil
}

func (c *conn) ListEmployees(ctx context.Context, scope calendar.Scope) ([]calendar.Employee, error) {
	query := `SELECT id, name, team_id, active FROM employees WHERE active`
	var args []any
	if !scope.AllTeams {
		query += ` AND team_id = $1`
		args = append(args, string(scope.TeamID))
	}
	query += ` ORDER BY name, id`

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
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

var refTables = map[calendar.RefKind]string{
	calendar.RefClient:   "clients",
	calendar.RefProject:  "projects",
	calendar.RefTaskType: "task_types",
}

// SaveReference creates or updates one reference row.
func (c *conn) SaveReference(ctx context.Context, r calendar.Reference) error {
	table, ok := refTables[r.Kind]
	if !ok {
		return &calendar.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown reference kind %q", r.Kind)}
	}
	_, err := c.q.Exec(ctx, `
		INSERT INTO `+table+` (id, name, color) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, color = EXCLUDED.color`,
		r.ID, r.Name, r.Color)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", r.Kind, r.ID, err)
	}
	return nil
}

// ResolveTasks loads every referenced row in one round trip.
func (c *conn) ResolveTasks(ctx context.Context, refs []calendar.TaskRef) (map[calendar.TaskRef]calendar.TaskDisplay, error) {
	var clients, projects, taskTypes []string
	for _, ref := range refs {
		if ref.ClientID != "" {
			clients = append(clients, ref.ClientID)
		}
		if ref.ProjectID != "" {
			projects = append(projects, ref.ProjectID)
		}
		if ref.TaskTypeID != "" {
			taskTypes = append(taskTypes, ref.TaskTypeID)
		}
	}

	type refKey struct {
		kind calendar.RefKind
		id   string
	}
	found := make(map[refKey]calendar.Reference)
	if len(clients)+len(projects)+len(taskTypes) > 0 {
		rows, err := c.q.Query(ctx, `
			SELECT 'client', id, name, color FROM clients WHERE id = ANY($1)
			UNION ALL
			SELECT 'project', id, name, color FROM projects WHERE id = ANY($2)
			UNION ALL
			SELECT 'task_type', id, name, color FROM task_types WHERE id = ANY($3)`,
			clients, projects, taskTypes)
		if err != nil {
			return nil, fmt.Errorf("resolve tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r calendar.Reference
			var kind string
			if err := rows.Scan(&kind, &r.ID, &r.Name, &r.Color); err != nil {
				return nil, err
			}
			r.Kind = calendar.RefKind(kind)
			found[refKey{kind: r.Kind, id: r.ID}] = r
		}
		if err := rows.Err(); err != nil {
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
