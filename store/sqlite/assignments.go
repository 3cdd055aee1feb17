package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/slot-calendar/calendar"
)

// =============================================================================
// ASSIGNMENT REPOSITORY
// =============================================================================

const assignmentColumns = `id, employee_id, date, slot, slot_order,
	column_start, layout_row, layout_column, layout_width, layout_height,
	task_id, title, task_type_id, project_id, client_id,
	priority, status, due_date, notes, duration_hours,
	is_active, created_by, updated_by, created_at, updated_at, deleted_at`

const slotRank = `CASE slot WHEN 'morning' THEN 0 ELSE 1 END`

func (s *Store) GetAssignment(ctx context.Context, id calendar.AssignmentID) (*calendar.Assignment, error) {
	c, done := s.read()
	defer done()
	return c.GetAssignment(ctx, id)
}

func (s *Store) SlotAssignments(ctx context.Context, key calendar.SlotKey) ([]calendar.Assignment, error) {
	c, done := s.read()
	defer done()
	return c.SlotAssignments(ctx, key)
}

func (s *Store) AssignmentsInRange(ctx context.Context, ids []calendar.EmployeeID, from, to calendar.Date) ([]calendar.Assignment, error) {
	c, done := s.read()
	defer done()
	return c.AssignmentsInRange(ctx, ids, from, to)
}

// SaveAssignments writes the batch in its own transaction so parking and
// upserts commit together.
func (s *Store) SaveAssignments(ctx context.Context, items ...calendar.Assignment) error {
	return s.inTx(ctx, func(c *conn) error { return c.SaveAssignments(ctx, items...) })
}

func (c *conn) GetAssignment(ctx context.Context, id calendar.AssignmentID) (*calendar.Assignment, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, string(id))
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "assignment", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (c *conn) SlotAssignments(ctx context.Context, key calendar.SlotKey) ([]calendar.Assignment, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE employee_id = ? AND date = ? AND slot = ? AND is_active = 1
		ORDER BY slot_order`,
		string(key.EmployeeID), key.Date.String(), string(key.Slot))
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

func (c *conn) AssignmentsInRange(ctx context.Context, ids []calendar.EmployeeID, from, to calendar.Date) ([]calendar.Assignment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+2)
	for _, id := range ids {
		args = append(args, string(id))
	}
	args = append(args, from.String(), to.String())

	rows, err := c.q.QueryContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE employee_id IN (`+placeholders(len(ids))+`)
		  AND date >= ? AND date <= ? AND is_active = 1
		ORDER BY employee_id, date, `+slotRank+`, slot_order`, args...)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

func (c *conn) SaveAssignments(ctx context.Context, items ...calendar.Assignment) error {
	// Park existing rows of the batch on negative ranks first.
	for _, a := range items {
		if _, err := c.q.ExecContext(ctx,
			`UPDATE assignments SET slot_order = -1 - slot_order WHERE id = ? AND slot_order >= 0`,
			string(a.ID)); err != nil {
			return fmt.Errorf("park assignment %s: %w", a.ID, err)
		}
	}

	for _, a := range items {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO assignments (`+assignmentColumns+`)
			VALUES (`+placeholders(26)+`)
			ON CONFLICT(id) DO UPDATE SET
				employee_id = excluded.employee_id,
				date = excluded.date,
				slot = excluded.slot,
				slot_order = excluded.slot_order,
				column_start = excluded.column_start,
				layout_row = excluded.layout_row,
				layout_column = excluded.layout_column,
				layout_width = excluded.layout_width,
				layout_height = excluded.layout_height,
				task_id = excluded.task_id,
				title = excluded.title,
				task_type_id = excluded.task_type_id,
				project_id = excluded.project_id,
				client_id = excluded.client_id,
				priority = excluded.priority,
				status = excluded.status,
				due_date = excluded.due_date,
				notes = excluded.notes,
				duration_hours = excluded.duration_hours,
				is_active = excluded.is_active,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at,
				deleted_at = excluded.deleted_at`,
			assignmentArgs(a)...)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("assignment %s at %s rank %d: %w", a.ID, a.Key(), a.SlotOrder, calendar.ErrRankTaken)
			}
			return fmt.Errorf("save assignment %s: %w", a.ID, err)
		}
	}
	return nil
}

func assignmentArgs(a calendar.Assignment) []any {
	return []any{
		string(a.ID), string(a.EmployeeID), a.Date.String(), string(a.Slot), a.SlotOrder,
		a.Layout.ColumnStart, a.Layout.Row, a.Layout.Column, a.Layout.Width, a.Layout.Height,
		a.Task.TaskID, a.Task.Title, a.Task.TaskTypeID, a.Task.ProjectID, a.Task.ClientID,
		string(a.Priority), string(a.Status), nullDate(a.DueDate), a.Notes, nullInt(a.DurationHours),
		a.IsActive, a.CreatedBy, a.UpdatedBy, formatTime(a.CreatedAt), formatTime(a.UpdatedAt), nullTime(a.DeletedAt),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (*calendar.Assignment, error) {
	var (
		a                    calendar.Assignment
		id, emp, date, slot  string
		priority, status     string
		createdAt, updatedAt string
		dueDate, deletedAt   sql.NullString
		duration             sql.NullInt64
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
	a.Slot = calendar.Slot(slot)
	a.Priority = calendar.Priority(priority)
	a.Status = calendar.Status(status)
	if a.Date, err = calendar.ParseDate(date); err != nil {
		return nil, err
	}
	if a.DueDate, err = parseNullDate(dueDate); err != nil {
		return nil, err
	}
	if duration.Valid {
		h := int(duration.Int64)
		a.DurationHours = &h
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	a.DeletedAt = parseNullTime(deletedAt)
	return &a, nil
}

func scanAssignments(rows *sql.Rows) ([]calendar.Assignment, error) {
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
