package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

// =============================================================================
// LEAVE REPOSITORY
// =============================================================================

const leaveColumns = `id, employee_id, from_date, to_date, leave_type, hours, slot,
	status, reason, exceeds_balance, requested_by, reviewed_by, review_note,
	reviewed_at, is_active, created_at, updated_at, deleted_at`

const allocationColumns = `employee_id, year, annual_total, annual_used,
	sick_total, sick_used, other_total, other_used, updated_at`

func (s *Store) GetLeave(ctx context.Context, id leave.RecordID) (*leave.Record, error) {
	c, done := s.read()
	defer done()
	return c.GetLeave(ctx, id)
}

func (s *Store) SaveLeave(ctx context.Context, r leave.Record) error {
	c, done := s.write()
	defer done()
	return c.SaveLeave(ctx, r)
}

func (s *Store) ListLeaves(ctx context.Context, f leave.Filter) ([]leave.Record, error) {
	c, done := s.read()
	defer done()
	return c.ListLeaves(ctx, f)
}

func (s *Store) GetAllocation(ctx context.Context, emp calendar.EmployeeID, year int) (*leave.Allocation, error) {
	c, done := s.read()
	defer done()
	return c.GetAllocation(ctx, emp, year)
}

func (s *Store) SaveAllocation(ctx context.Context, a leave.Allocation) error {
	c, done := s.write()
	defer done()
	return c.SaveAllocation(ctx, a)
}

func (s *Store) ListAllocations(ctx context.Context, year int) ([]leave.Allocation, error) {
	c, done := s.read()
	defer done()
	return c.ListAllocations(ctx, year)
}

func (c *conn) GetLeave(ctx context.Context, id leave.RecordID) (*leave.Record, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leave_records WHERE id = ?`, string(id))
	r, err := scanLeave(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "leave", ID: string(id)}
	}
	return r, err
}

func (c *conn) SaveLeave(ctx context.Context, r leave.Record) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_records (`+leaveColumns+`)
		VALUES (`+placeholders(18)+`)
		ON CONFLICT(id) DO UPDATE SET
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			leave_type = excluded.leave_type,
			hours = excluded.hours,
			slot = excluded.slot,
			status = excluded.status,
			reason = excluded.reason,
			exceeds_balance = excluded.exceeds_balance,
			reviewed_by = excluded.reviewed_by,
			review_note = excluded.review_note,
			reviewed_at = excluded.reviewed_at,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`,
		string(r.ID), string(r.EmployeeID), r.From.String(), r.To.String(), string(r.Type), r.Hours, string(r.Slot),
		string(r.Status), r.Reason, r.ExceedsBalance, r.RequestedBy, r.ReviewedBy, r.ReviewNote,
		nullTime(r.ReviewedAt), r.IsActive, formatTime(r.CreatedAt), formatTime(r.UpdatedAt), nullTime(r.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("save leave %s: %w", r.ID, err)
	}
	return nil
}

func (c *conn) ListLeaves(ctx context.Context, f leave.Filter) ([]leave.Record, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeInactive {
		where = append(where, "is_active = 1")
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "to_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "from_date <= ?")
		args = append(args, f.To.String())
	}
	if len(f.EmployeeIDs) > 0 {
		where = append(where, "employee_id IN ("+placeholders(len(f.EmployeeIDs))+")")
		for _, id := range f.EmployeeIDs {
			args = append(args, string(id))
		}
	}

	query := `SELECT ` + leaveColumns + ` FROM leave_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY employee_id, from_date, id"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Record
	for rows.Next() {
		r, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (c *conn) GetAllocation(ctx context.Context, emp calendar.EmployeeID, year int) (*leave.Allocation, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM leave_allocations WHERE employee_id = ? AND year = ?`,
		string(emp), year)
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "allocation", ID: fmt.Sprintf("%s/%d", emp, year)}
	}
	return a, err
}

func (c *conn) SaveAllocation(ctx context.Context, a leave.Allocation) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_allocations (`+allocationColumns+`)
		VALUES (`+placeholders(9)+`)
		ON CONFLICT(employee_id, year) DO UPDATE SET
			annual_total = excluded.annual_total,
			annual_used = excluded.annual_used,
			sick_total = excluded.sick_total,
			sick_used = excluded.sick_used,
			other_total = excluded.other_total,
			other_used = excluded.other_used,
			updated_at = excluded.updated_at`,
		string(a.EmployeeID), a.Year,
		a.Annual.Total.String(), a.Annual.Used.String(),
		a.Sick.Total.String(), a.Sick.Used.String(),
		a.Other.Total.String(), a.Other.Used.String(),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save allocation %s/%d: %w", a.EmployeeID, a.Year, err)
	}
	return nil
}

func (c *conn) ListAllocations(ctx context.Context, year int) ([]leave.Allocation, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+allocationColumns+` FROM leave_allocations WHERE year = ? ORDER BY employee_id`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanLeave(row scanner) (*leave.Record, error) {
	var (
		r                     leave.Record
		id, emp, from, to     string
		typ, slot, status     string
		createdAt, updatedAt  string
		reviewedAt, deletedAt sql.NullString
	)
	err := row.Scan(
		&id, &emp, &from, &to, &typ, &r.Hours, &slot,
		&status, &r.Reason, &r.ExceedsBalance, &r.RequestedBy, &r.ReviewedBy, &r.ReviewNote,
		&reviewedAt, &r.IsActive, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ID = leave.RecordID(id)
	r.EmployeeID = calendar.EmployeeID(emp)
	r.Type = leave.Type(typ)
	r.Slot = calendar.Slot(slot)
	r.Status = leave.Status(status)
	if r.From, err = calendar.ParseDate(from); err != nil {
		return nil, err
	}
	if r.To, err = calendar.ParseDate(to); err != nil {
		return nil, err
	}
	r.ReviewedAt = parseNullTime(reviewedAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.DeletedAt = parseNullTime(deletedAt)
	return &r, nil
}

func scanAllocation(row scanner) (*leave.Allocation, error) {
	var (
		a         leave.Allocation
		emp       string
		updatedAt string
		raw       [6]string
	)
	err := row.Scan(&emp, &a.Year, &raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &updatedAt)
	if err != nil {
		return nil, err
	}

	var dec [6]decimal.Decimal
	for i, s := range raw {
		if dec[i], err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("allocation %s/%d: %w", emp, a.Year, err)
		}
	}
	a.EmployeeID = calendar.EmployeeID(emp)
	a.Annual = leave.Balance{Total: dec[0], Used: dec[1]}
	a.Sick = leave.Balance{Total: dec[2], Used: dec[3]}
	a.Other = leave.Balance{Total: dec[4], Used: dec[5]}
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
