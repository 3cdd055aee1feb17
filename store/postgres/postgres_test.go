package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
	"github.com/warp/slot-calendar/store/postgres"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	monday = calendar.NewDate(2025, time.March, 10)
	now    = time.Date(2025, time.March, 7, 9, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock, postgres.New(mock)
}

var assignmentCols = []string{
	"id", "employee_id", "date", "slot", "slot_order",
	"column_start", "layout_row", "layout_column", "layout_width", "layout_height",
	"task_id", "title", "task_type_id", "project_id", "client_id",
	"priority", "status", "due_date", "notes", "duration_hours",
	"is_active", "created_by", "updated_by", "created_at", "updated_at", "deleted_at",
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestGetAssignment(t *testing.T) {
	mock, store := newMock(t)
	due := monday.AddDays(4).Time()
	hours := int32(2)

	mock.ExpectQuery(regexp.QuoteMeta("FROM assignments WHERE id = $1")).
		WithArgs("a-1").
		WillReturnRows(pgxmock.NewRows(assignmentCols).AddRow(
			"a-1", "emp-1", monday.Time(), "morning", 1,
			1, 0, 1, 1, 2,
			"", "survey", "", "p-1", "",
			"high", "todo", &due, "", &hours,
			true, "admin-1", "admin-1", now, now, (*time.Time)(nil),
		))

	a, err := store.GetAssignment(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, monday, a.Date)
	assert.Equal(t, calendar.SlotMorning, a.Slot)
	assert.Equal(t, calendar.LayoutFor(1, 2), a.Layout)
	assert.Equal(t, "p-1", a.Task.ProjectID)
	require.NotNil(t, a.DueDate)
	assert.Equal(t, monday.AddDays(4), *a.DueDate)
	require.NotNil(t, a.DurationHours)
	assert.Equal(t, 2, *a.DurationHours)
	assert.Nil(t, a.DeletedAt)
}

func TestGetAssignment_NotFound(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM assignments WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetAssignment(context.Background(), "missing")
	assert.True(t, calendar.IsNotFound(err))
}

func TestSaveAssignments_RankTaken(t *testing.T) {
	// GIVEN: The database rejects the upsert on the unique rank index
	// WHEN: Saving a batch
	// THEN: ErrRankTaken surfaces and the transaction rolls back

	mock, store := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assignments SET slot_order").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO assignments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_assignments_slot_rank"})
	mock.ExpectRollback()

	err := store.SaveAssignments(context.Background(), calendar.Assignment{
		ID: "a-1", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, IsActive: true,
	})
	assert.ErrorIs(t, err, calendar.ErrRankTaken)
}

func TestWithTx_Commits(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assignments SET slot_order").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("INSERT INTO assignments").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO assignments").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx calendar.Repository) error {
		return tx.SaveAssignments(context.Background(),
			calendar.Assignment{ID: "a-1", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, SlotOrder: 1, IsActive: true},
			calendar.Assignment{ID: "a-2", EmployeeID: "emp-1", Date: monday, Slot: calendar.SlotMorning, SlotOrder: 0, IsActive: true},
		)
	})
	assert.NoError(t, err)
}

// =============================================================================
// LEAVE
// =============================================================================

func TestListLeaves_BuildsFilter(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active AND status = $1 AND employee_id = ANY($2)")).
		WithArgs("approved", []string{"emp-1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	records, err := store.ListLeaves(context.Background(), leave.Filter{
		Status:      leave.StatusApproved,
		EmployeeIDs: []calendar.EmployeeID{"emp-1"},
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetAllocation(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery("FROM leave_allocations WHERE employee_id").
		WithArgs("emp-1", 2025).
		WillReturnRows(pgxmock.NewRows([]string{
			"employee_id", "year", "annual_total", "annual_used",
			"sick_total", "sick_used", "other_total", "other_used", "updated_at",
		}).AddRow("emp-1", 2025, "25.0", "2.5", "10.0", "0.0", "5.0", "0.0", now))

	a, err := store.GetAllocation(context.Background(), "emp-1", 2025)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("22.5").Equal(a.Annual.Remaining()))
	assert.True(t, decimal.NewFromInt(10).Equal(a.Sick.Total))
}

func TestGetAllocation_NotFound(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery("FROM leave_allocations WHERE employee_id").
		WithArgs("emp-1", 2026).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetAllocation(context.Background(), "emp-1", 2026)
	assert.True(t, calendar.IsNotFound(err))
}

func TestWithLeaveTx_RollsBack(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO leave_allocations").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	ctx := context.Background()
	err := store.WithLeaveTx(ctx, func(tx leave.Repository) error {
		if err := tx.SaveAllocation(ctx, leave.DefaultTemplate.Allocation("emp-1", 2025, now)); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func TestListEmployees_TeamScope(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM employees WHERE active AND team_id = $1")).
		WithArgs("team-a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "team_id", "active"}).
			AddRow("emp-1", "Alice", "team-a", true))

	employees, err := store.ListEmployees(context.Background(), calendar.TeamScope("team-a"))
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, calendar.Employee{ID: "emp-1", Name: "Alice", TeamID: "team-a", Active: true}, employees[0])
}

func TestResolveTasks(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery("UNION ALL").
		WillReturnRows(pgxmock.NewRows([]string{"kind", "id", "name", "color"}).
			AddRow("client", "c-1", "Acme", "#f00").
			AddRow("project", "p-1", "Bridge", ""))

	ref := calendar.TaskRef{Title: "x", ClientID: "c-1", ProjectID: "p-1"}
	got, err := store.ResolveTasks(context.Background(), []calendar.TaskRef{ref})
	require.NoError(t, err)
	assert.Equal(t, calendar.TaskDisplay{ProjectName: "Bridge", ClientName: "Acme", Color: "#f00"}, got[ref])
}

func TestSaveReference_UnknownKind(t *testing.T) {
	_, store := newMock(t)
	err := store.SaveReference(context.Background(), calendar.Reference{Kind: "vendor", ID: "v-1"})
	assert.ErrorIs(t, err, calendar.ErrValidation)
}
