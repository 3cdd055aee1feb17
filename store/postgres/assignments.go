package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/slot-calendar/calendar"
)

const assignmentColumns = `id, employee_id, date, slot, slot_order,
	column_start, layout_row, layout_column, layout_width, layout_height,
	task_id, title, task_type_id, project_id, client_id,
	priority, status, due_date, notes, duration_hours,
	is_active, created_by, updated_by, created_at, updated_at, deleted_at`

func (c *conn) GetAssignment(ctx context.Context, id calendar.AssignmentID) (*calendar.Assignment, error) {
	row := c.q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, string(id))
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "assignment", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (c *conn) SlotAssignments(ctx context.Context, key calendar.SlotKey) ([]calendar.Assignment, error) {
	rows, err := c.q.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE employee_id = $1 AND date = $2 AND slot = $3 AND is_active
		ORDER BY slot_order`,
		string(key.EmployeeID), key.Date.Time(), string(key.Slot))
	if err != nil {
		return nil, fmt.Errorf("slot assignments: %w", err)
	}
	return scanAssignments(rows)
}

func (c *conn) AssignmentsInRange(ctx context.Context, ids []calendar.EmployeeID, from, to calendar.Date) ([]calendar.Assignment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := c.q.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE employee_id = ANY($1) AND date BETWEEN $2 AND $3 AND is_active
		ORDER BY employee_id, date, CASE slot WHEN 'morning' THEN 0 ELSE 1 END, slot_order`,
		employeeStrings(ids), from.Time(), to.Time())
	if err != nil {
		return nil, fmt.Errorf("assignments in range: %w", err)
	}
	return scanAssignments(rows)
}

func (c *conn) SaveAssignments(ctx context.Context, items ...calendar.Assignment) error {
	ids := make([]string, len(items))
	for i, a := range items {
		ids[i] = string(a.ID)
	}
	// Park existing rows of the batch on negative ranks first.
	if _, err := c.q.Exec(ctx,
		`UPDATE assignments SET slot_order = -1 - slot_order WHERE id = ANY($1) AND slot_order >= 0`,
		ids); err != nil {
		return fmt.Errorf("park assignments: %w", err)
	}

	for _, a := range items {
		_, err := c.q.Exec(ctx, `
			INSERT INTO assignments (`+assignmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
			ON CONFLICT (id) DO UPDATE SET
				employee_id = EXCLUDED.employee_id,
				date = EXCLUDED.date,
				slot = EXCLUDED.slot,
				slot_order = EXCLUDED.slot_order,
				column_start = EXCLUDED.column_start,
				layout_row = EXCLUDED.layout_row,
				layout_column = EXCLUDED.layout_column,
				layout_width = EXCLUDED.layout_width,
				layout_height = EXCLUDED.layout_height,
				task_id = EXCLUDED.task_id,
				title = EXCLUDED.title,
				task_type_id = EXCLUDED.task_type_id,
				project_id = EXCLUDED.project_id,
				client_id = EXCLUDED.client_id,
				priority = EXCLUDED.priority,
				status = EXCLUDED.status,
				due_date = EXCLUDED.due_date,
				notes = EXCLUDED.notes,
				duration_hours = EXCLUDED.duration_hours,
				is_active = EXCLUDED.is_active,
				updated_by = EXCLUDED.updated_by,
				updated_at = EXCLUDED.updated_at,
				deleted_at = EXCLUDED.deleted_at`,
			string(a.ID), string(a.EmployeeID), a.Date.Time(), string(a.Slot), a.SlotOrder,
			a.Layout.ColumnStart, a.Layout.Row, a.Layout.Column, a.Layout.Width, a.Layout.Height,
			a.Task.TaskID, a.Task.Title, a.Task.TaskTypeID, a.Task.ProjectID, a.Task.ClientID,
			string(a.Priority), string(a.Status), dateArg(a.DueDate), a.Notes, a.DurationHours,
			a.IsActive, a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt, a.DeletedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("assignment %s at %s rank %d: %w", a.ID, a.Key(), a.SlotOrder, calendar.ErrRankTaken)
			}
			return fmt.Errorf("save assignment %s: %w", a.ID, err)
		}
	}
	return nil
}

func scanAssignment(row pgx.Row) (*calendar.Assignment, error) {
	var (
		a                    calendar.Assignment
		id, emp, slot        string
		priority, status     string
		date                 time.Time
		dueDate, deletedAt   *time.Time
		duration             *int32
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&id, &emp, &date, &slot, &a.SlotOrder,
		&a.Layout.ColumnStart, &a.Layout.Row, &a.Layout.Column, &a.Layout.Width, &a.Layout.Height,
		&a.Task.TaskID, &a.Task.Title, &a.Task.TaskTypeID, &a.Task.ProjectID, &a.Task.ClientID,
		&priority, &status, &dueDate, &a.Notes, &duration,
		&a.IsActive, &a.CreatedBy, &a.UpdatedBy, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ID = calendar.AssignmentID(id)
	a.EmployeeID = calendar.EmployeeID(emp)
	a.Date = calendar.DateOf(date)
	a.Slot = calendar.Slot(slot)
	a.Priority = calendar.Priority(priority)
	a.Status = calendar.Status(status)
	a.DueDate = dateOf(dueDate)
	if duration != nil {
		h := int(*duration)
		a.DurationHours = &h
	}
	a.CreatedAt = createdAt.UTC()
	a.UpdatedAt = updatedAt.UTC()
	a.DeletedAt = utc(deletedAt)
	return &a, nil
}

func scanAssignments(rows pgx.Rows) ([]calendar.Assignment, error) {
	defer rows.Close()
	var out []calendar.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func employeeStrings(ids []calendar.EmployeeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
