package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mksu-dev/clearance-api/internal/models"
)

func approvalLockRows(id, requestID, departmentID string, status models.ApprovalStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "clearance_request_id", "department_id", "status", "approved_by",
		"approval_date", "rejection_reason", "notes", "evidence_file", "created_at", "updated_at"}).
		AddRow(id, requestID, departmentID, status, nil, nil, nil, "", nil, now, now)
}

func nextPendingRows(id, departmentID, departmentName string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "department_id", "department_name"}).
		AddRow(id, departmentID, departmentName)
}

func TestApplyDecisionApproveIntermediate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1 FOR UPDATE")).
		WithArgs("appr-1").
		WillReturnRows(approvalLockRows("appr-1", "req-1", "dept-1", models.ApprovalStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("SUBMITTED"))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.approval_order ASC, d.name ASC LIMIT 1")).
		WithArgs("req-1").
		WillReturnRows(nextPendingRows("appr-1", "dept-1", "Finance"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM approvals WHERE clearance_request_id = $1 AND status = 'PENDING'")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clearance_requests SET status = $2, updated_at = $3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyDecision(context.Background(), DecisionInput{
		ApprovalID: "appr-1",
		Action:     models.DecisionApprove,
		ActorID:    "staff-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, outcome.Approval.Status)
	assert.Equal(t, models.ClearanceStatusInProgress, outcome.RequestStatus)
	assert.Equal(t, 2, outcome.PendingRemaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDecisionApproveFinalCompletes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1 FOR UPDATE")).
		WithArgs("appr-5").
		WillReturnRows(approvalLockRows("appr-5", "req-1", "dept-5", models.ApprovalStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("IN_PROGRESS"))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.approval_order ASC, d.name ASC LIMIT 1")).
		WithArgs("req-1").
		WillReturnRows(nextPendingRows("appr-5", "dept-5", "Sports"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clearance_requests SET status = $2, completion_date = $3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyDecision(context.Background(), DecisionInput{
		ApprovalID: "appr-5",
		Action:     models.DecisionApprove,
		ActorID:    "staff-5",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClearanceStatusCompleted, outcome.RequestStatus)
	assert.Equal(t, 0, outcome.PendingRemaining)
}

func TestApplyDecisionRejectShortCircuits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1 FOR UPDATE")).
		WithArgs("appr-2").
		WillReturnRows(approvalLockRows("appr-2", "req-1", "dept-2", models.ApprovalStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("IN_PROGRESS"))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.approval_order ASC, d.name ASC LIMIT 1")).
		WithArgs("req-1").
		WillReturnRows(nextPendingRows("appr-2", "dept-2", "Library"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clearance_requests SET status = $2, rejection_reason = $3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyDecision(context.Background(), DecisionInput{
		ApprovalID: "appr-2",
		Action:     models.DecisionReject,
		ActorID:    "staff-2",
		Reason:     "outstanding library fines",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, outcome.Approval.Status)
	assert.Equal(t, models.ClearanceStatusRejected, outcome.RequestStatus)
	require.NotNil(t, outcome.Approval.RejectionReason)
	assert.Equal(t, "outstanding library fines", *outcome.Approval.RejectionReason)
}

func TestApplyDecisionOutOfOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1 FOR UPDATE")).
		WithArgs("appr-3").
		WillReturnRows(approvalLockRows("appr-3", "req-1", "dept-3", models.ApprovalStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("SUBMITTED"))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.approval_order ASC, d.name ASC LIMIT 1")).
		WithArgs("req-1").
		WillReturnRows(nextPendingRows("appr-1", "dept-1", "Finance"))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionInput{
		ApprovalID: "appr-3",
		Action:     models.DecisionApprove,
		ActorID:    "staff-3",
	})
	var outOfOrder *OutOfOrderError
	require.ErrorAs(t, err, &outOfOrder)
	assert.Equal(t, "appr-1", outOfOrder.NextApprovalID)
	assert.Equal(t, "Finance", outOfOrder.NextDepartmentName)
}

func TestApplyDecisionAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1 FOR UPDATE")).
		WithArgs("appr-1").
		WillReturnRows(approvalLockRows("appr-1", "req-1", "dept-1", models.ApprovalStatusApproved))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("IN_PROGRESS"))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionInput{
		ApprovalID: "appr-1",
		Action:     models.DecisionApprove,
		ActorID:    "staff-1",
	})
	assert.True(t, errors.Is(err, ErrAlreadyDecided))
}

func TestApplyDecisionFinalizedRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1 FOR UPDATE")).
		WithArgs("appr-4").
		WillReturnRows(approvalLockRows("appr-4", "req-1", "dept-4", models.ApprovalStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("REJECTED"))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionInput{
		ApprovalID: "appr-4",
		Action:     models.DecisionApprove,
		ActorID:    "staff-4",
	})
	assert.True(t, errors.Is(err, ErrRequestFinalized))
}

func TestApplyDecisionDraftRequest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals WHERE id = $1 FOR UPDATE")).
		WithArgs("appr-1").
		WillReturnRows(approvalLockRows("appr-1", "req-1", "dept-1", models.ApprovalStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("DRAFT"))
	mock.ExpectRollback()

	_, err := repo.ApplyDecision(context.Background(), DecisionInput{
		ApprovalID: "appr-1",
		Action:     models.DecisionApprove,
		ActorID:    "staff-1",
	})
	assert.True(t, errors.Is(err, ErrRequestNotSubmitted))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEvidenceDecidedRecord(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET evidence_file = $2")).
		WithArgs("appr-1", "evidence/appr-1.pdf", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateEvidence(context.Background(), "appr-1", "evidence/appr-1.pdf")
	assert.True(t, errors.Is(err, ErrAlreadyDecided))
}
