package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

const leaveColumns = `id, employee_id, from_date, to_date, leave_type, hours, slot,
	status, reason, exceeds_balance, requested_by, reviewed_by, review_note,
	reviewed_at, is_active, created_at, updated_at, deleted_at`

const allocationColumns = `employee_id, year,
	annual_total::text, annual_used::text, sick_total::text, sick_used::text,
	other_total::text, other_used::text, updated_at`

func (c *conn) GetLeave(ctx context.Context, id leave.RecordID) (*leave.Record, error) {
	row := c.q.QueryRow(ctx, `SELECT `+leaveColumns+` FROM leave_records WHERE id = $1`, string(id))
	r, err := scanLeave(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "leave", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("get leave: %w", err)
	}
	return r, nil
}

func (c *conn) SaveLeave(ctx context.Context, r leave.Record) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_records (`+leaveColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			from_date = EXCLUDED.from_date,
			to_date = EXCLUDED.to_date,
			leave_type = EXCLUDED.leave_type,
			hours = EXCLUDED.hours,
			slot = EXCLUDED.slot,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			exceeds_balance = EXCLUDED.exceeds_balance,
			reviewed_by = EXCLUDED.reviewed_by,
			review_note = EXCLUDED.review_note,
			reviewed_at = EXCLUDED.reviewed_at,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at`,
		string(r.ID), string(r.EmployeeID), r.From.Time(), r.To.Time(), string(r.Type), r.Hours, string(r.Slot),
		string(r.Status), r.Reason, r.ExceedsBalance, r.RequestedBy, r.ReviewedBy, r.ReviewNote,
		r.ReviewedAt, r.IsActive, r.CreatedAt, r.UpdatedAt, r.DeletedAt,
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
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !f.IncludeInactive {
		where = append(where, "is_active")
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if !f.From.IsZero() {
		where = append(where, "to_date >= "+arg(f.From.Time()))
	}
	if !f.To.IsZero() {
		where = append(where, "from_date <= "+arg(f.To.Time()))
	}
	if len(f.EmployeeIDs) > 0 {
		where = append(where, "employee_id = ANY("+arg(employeeStrings(f.EmployeeIDs))+")")
	}

	query := `SELECT ` + leaveColumns + ` FROM leave_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY employee_id, from_date, id"

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
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
	row := c.q.QueryRow(ctx,
		`SELECT `+allocationColumns+` FROM leave_allocations WHERE employee_id = $1 AND year = $2`,
		string(emp), year)
	a, err := scanAllocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &calendar.NotFoundError{Kind: "allocation", ID: fmt.Sprintf("%s/%d", emp, year)}
	}
	if err != nil {
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	return a, nil
}

func (c *conn) SaveAllocation(ctx context.Context, a leave.Allocation) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_allocations (employee_id, year, annual_total, annual_used,
			sick_total, sick_used, other_total, other_used, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9)
		ON CONFLICT (employee_id, year) DO UPDATE SET
			annual_total = EXCLUDED.annual_total,
			annual_used = EXCLUDED.annual_used,
			sick_total = EXCLUDED.sick_total,
			sick_used = EXCLUDED.sick_used,
			other_total = EXCLUDED.other_total,
			other_used = EXCLUDED.other_used,
			updated_at = EXCLUDED.updated_at`,
		string(a.EmployeeID), a.Year,
		a.Annual.Total.String(), a.Annual.Used.String(),
		a.Sick.Total.String(), a.Sick.Used.String(),
		a.Other.Total.String(), a.Other.Used.String(),
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save allocation %s/%d: %w", a.EmployeeID, a.Year, err)
	}
	return nil
}

func (c *conn) ListAllocations(ctx context.Context, year int) ([]leave.Allocation, error) {
	rows, err := c.q.Query(ctx,
		`SELECT `+allocationColumns+` FROM leave_allocations WHERE year = $1 ORDER BY employee_id`, year)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
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

func scanLeave(row pgx.Row) (*leave.Record, error) {
	var (
		r                     leave.Record
		id, emp               string
		typ, slot, status     string
		from, to              time.Time
		createdAt, updatedAt  time.Time
		reviewedAt, deletedAt *time.Time
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
	r.From = calendar.DateOf(from)
	r.To = calendar.DateOf(to)
	r.Type = leave.Type(typ)
	r.Slot = calendar.Slot(slot)
	r.Status = leave.Status(status)
	r.ReviewedAt = utc(reviewedAt)
	r.CreatedAt = createdAt.UTC()
	r.UpdatedAt = updatedAt.UTC()
	r.DeletedAt = utc(deletedAt)
	return &r, nil
}

func scanAllocation(row pgx.Row) (*leave.Allocation, error) {
	var (
		a         leave.Allocation
		emp       string
		raw       [6]string
		updatedAt time.Time
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
	a.UpdatedAt = updatedAt.UTC()
	return &a, nil
}
