package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mksu-dev/clearance-api/internal/models"
)

func TestCreateWithLedgerInsertsOneRowPerDepartment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	departments := []models.Department{
		{ID: "dept-1", Name: "Finance", ApprovalOrder: 1},
		{ID: "dept-2", Name: "Library", ApprovalOrder: 2},
		{ID: "dept-3", Name: "Hostel", ApprovalOrder: 3},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM clearance_requests WHERE student_id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clearance_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, department := range departments {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), department.ID, department.ApprovalOrder,
				models.ApprovalStatusPending, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	request := &models.ClearanceRequest{
		StudentID: "student-1",
		Status:    models.ClearanceStatusDraft,
	}
	err := repo.CreateWithLedger(context.Background(), request, departments)
	require.NoError(t, err)
	assert.NotEmpty(t, request.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithLedgerDuplicateActiveRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM clearance_requests WHERE student_id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	request := &models.ClearanceRequest{
		StudentID: "student-1",
		Status:    models.ClearanceStatusDraft,
	}
	err := repo.CreateWithLedger(context.Background(), request, nil)
	assert.True(t, errors.Is(err, ErrLedgerExists))
}

func TestSummarize(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	rows := sqlmock.NewRows([]string{"total", "approved", "rejected", "pending"}).
		AddRow(5, 2, 0, 3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE clearance_request_id = $1")).
		WithArgs("req-1").
		WillReturnRows(rows)

	summary, err := repo.Summarize(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Decided())
	assert.Equal(t, 3, summary.Pending)
}

func TestListProgressOrdering(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	rows := sqlmock.NewRows([]string{"approval_id", "approval_order", "department_name", "department_code",
		"status", "approved_by", "approval_date", "rejection_reason", "notes"}).
		AddRow("appr-1", 1, "Finance", "FIN", "APPROVED", "staff-1", nil, nil, "").
		AddRow("appr-2", 2, "Library", "LIB", "PENDING", nil, nil, nil, "")

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.approval_order ASC, d.name ASC")).
		WithArgs("req-1").
		WillReturnRows(rows)

	entries, err := repo.ListProgress(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Order)
	assert.Equal(t, "Finance", entries[0].DepartmentName)
	assert.Equal(t, "PENDING", entries[1].Status)
}

func TestClearanceStatistics(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	rows := sqlmock.NewRows([]string{"total", "draft", "submitted", "in_progress", "completed", "rejected"}).
		AddRow(10, 1, 2, 3, 3, 1)
	mock.ExpectQuery(regexp.QuoteMeta("FROM clearance_requests")).
		WillReturnRows(rows)

	stats, err := repo.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalRequests)
	assert.InDelta(t, 30.0, stats.CompletionRate, 0.01)
}
