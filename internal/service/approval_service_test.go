package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/repository"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type approvalStoreStub struct {
	records      map[string]*models.ApprovalRecord
	details      map[string]*models.ApprovalDetail
	outcome      *repository.DecisionOutcome
	nextPending  *models.ApprovalDetail
	decisionErr  error
	applied      []repository.DecisionInput
	evidenceErr  error
	evidencePath string
}

func (s *approvalStoreStub) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalDetail, int, error) {
	return nil, 0, nil
}

func (s *approvalStoreStub) FindByID(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	if record, ok := s.records[id]; ok {
		return record, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) FindDetailByID(ctx context.Context, id string) (*models.ApprovalDetail, error) {
	if detail, ok := s.details[id]; ok {
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) NextPendingInOrder(ctx context.Context, requestID string) (*models.ApprovalDetail, error) {
	if s.nextPending != nil {
		return s.nextPending, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) ApplyDecision(ctx context.Context, input repository.DecisionInput) (*repository.DecisionOutcome, error) {
	s.applied = append(s.applied, input)
	if s.decisionErr != nil {
		return nil, s.decisionErr
	}
	return s.outcome, nil
}

func (s *approvalStoreStub) UpdateEvidence(ctx context.Context, id, filePath string) error {
	s.evidencePath = filePath
	return s.evidenceErr
}

func (s *approvalStoreStub) ListPendingForDepartment(ctx context.Context, departmentID string, page, size int) ([]models.ApprovalDetail, int, error) {
	return nil, 0, nil
}

func (s *approvalStoreStub) Statistics(ctx context.Context, departmentID string) ([]models.ApprovalStatistics, error) {
	return nil, nil
}

type clearanceReaderStub struct {
	requests map[string]*models.ClearanceRequest
}

func (s clearanceReaderStub) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	if request, ok := s.requests[id]; ok {
		return request, nil
	}
	return nil, sql.ErrNoRows
}

type studentReaderStub struct {
	students map[string]*models.StudentDetail
	byUser   map[string]*models.StudentDetail
}

func (s studentReaderStub) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if student, ok := s.students[id]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

func (s studentReaderStub) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	if student, ok := s.byUser[userID]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

type staffListerStub struct {
	byDepartment map[string][]models.User
}

func (s staffListerStub) ListActiveByDepartment(ctx context.Context, departmentID string) ([]models.User, error) {
	return s.byDepartment[departmentID], nil
}

type notifyStub struct {
	intents []models.NotificationIntent
}

func (s *notifyStub) Emit(intent models.NotificationIntent) {
	s.intents = append(s.intents, intent)
}

type auditStub struct {
	intents []models.AuditIntent
}

func (s *auditStub) Record(intent models.AuditIntent) {
	s.intents = append(s.intents, intent)
}

type metricsStub struct {
	decisions []string
}

func (s *metricsStub) RecordDecision(action string, outcome models.ClearanceStatus) {
	s.decisions = append(s.decisions, action+":"+string(outcome))
}

func staffClaims(departmentID string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:       "staff-1",
		Role:         models.RoleDepartmentStaff,
		FullName:     "Finance Officer",
		DepartmentID: &departmentID,
	}
}

func pendingRecord(id, requestID, departmentID string) *models.ApprovalRecord {
	return &models.ApprovalRecord{
		ID:           id,
		RequestID:    requestID,
		DepartmentID: departmentID,
		Status:       models.ApprovalStatusPending,
	}
}

func newDecisionFixture(outcome *repository.DecisionOutcome) (*approvalStoreStub, *notifyStub, *auditStub, *metricsStub, *ApprovalService) {
	store := &approvalStoreStub{
		records: map[string]*models.ApprovalRecord{
			"appr-1": pendingRecord("appr-1", "req-1", "dept-1"),
		},
		details: map[string]*models.ApprovalDetail{
			"appr-1": {ApprovalRecord: *pendingRecord("appr-1", "req-1", "dept-1"), DepartmentName: "Finance"},
		},
		outcome: outcome,
	}
	requests := clearanceReaderStub{requests: map[string]*models.ClearanceRequest{
		"req-1": {ID: "req-1", StudentID: "student-1", Status: models.ClearanceStatusInProgress},
	}}
	students := studentReaderStub{students: map[string]*models.StudentDetail{
		"student-1": {Student: models.Student{ID: "student-1", UserID: "user-1"}, FullName: "Jane Mwangi"},
	}}
	staff := staffListerStub{byDepartment: map[string][]models.User{
		"dept-2": {{ID: "staff-2", Role: models.RoleDepartmentStaff}},
	}}
	notify := &notifyStub{}
	audit := &auditStub{}
	metrics := &metricsStub{}
	svc := NewApprovalService(store, requests, students, staff, nil, nil, 0, metrics, notify, audit, nil, zap.NewNop())
	return store, notify, audit, metrics, svc
}

func TestApprovalServiceDecideApprove(t *testing.T) {
	outcome := &repository.DecisionOutcome{
		Approval:         models.ApprovalRecord{ID: "appr-1", RequestID: "req-1", Status: models.ApprovalStatusApproved},
		DepartmentName:   "Finance",
		RequestID:        "req-1",
		RequestStatus:    models.ClearanceStatusInProgress,
		PendingRemaining: 2,
	}
	store, notify, audit, metrics, svc := newDecisionFixture(outcome)

	detail, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-1"))
	require.NoError(t, err)
	assert.Equal(t, "Finance", detail.DepartmentName)
	require.Len(t, store.applied, 1)
	assert.Equal(t, "staff-1", store.applied[0].ActorID)
	require.Len(t, notify.intents, 1)
	assert.Equal(t, models.NotificationApprovalAction, notify.intents[0].Type)
	assert.Equal(t, "user-1", notify.intents[0].RecipientID)
	require.Len(t, audit.intents, 1)
	assert.Equal(t, models.AuditActionApprove, audit.intents[0].Action)
	assert.Equal(t, []string{"approve:IN_PROGRESS"}, metrics.decisions)
}

func TestApprovalServiceDecideFinalApprovalNotifiesCompletion(t *testing.T) {
	outcome := &repository.DecisionOutcome{
		Approval:       models.ApprovalRecord{ID: "appr-1", RequestID: "req-1", Status: models.ApprovalStatusApproved},
		DepartmentName: "Sports",
		RequestID:      "req-1",
		RequestStatus:  models.ClearanceStatusCompleted,
	}
	_, notify, _, _, svc := newDecisionFixture(outcome)

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-1"))
	require.NoError(t, err)
	require.Len(t, notify.intents, 1)
	assert.Equal(t, models.NotificationClearanceApproved, notify.intents[0].Type)
}

func TestApprovalServiceDecideApproveAlertsNextDepartment(t *testing.T) {
	outcome := &repository.DecisionOutcome{
		Approval:         models.ApprovalRecord{ID: "appr-1", RequestID: "req-1", Status: models.ApprovalStatusApproved},
		DepartmentName:   "Finance",
		RequestID:        "req-1",
		RequestStatus:    models.ClearanceStatusInProgress,
		PendingRemaining: 1,
	}
	store, notify, _, _, svc := newDecisionFixture(outcome)
	store.nextPending = &models.ApprovalDetail{
		ApprovalRecord: models.ApprovalRecord{ID: "appr-2", RequestID: "req-1", DepartmentID: "dept-2"},
		DepartmentName: "Library",
	}

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-1"))
	require.NoError(t, err)
	require.Len(t, notify.intents, 2)
	assert.Equal(t, models.NotificationApprovalAction, notify.intents[0].Type)
	assert.Equal(t, models.NotificationApprovalPending, notify.intents[1].Type)
	assert.Equal(t, "staff-2", notify.intents[1].RecipientID)
	assert.Contains(t, notify.intents[1].Message, "Library")
}

func TestApprovalServiceDecideRejectRequiresReason(t *testing.T) {
	_, _, _, _, svc := newDecisionFixture(nil)

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionReject, Reason: "   "}, staffClaims("dept-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceDecideWrongDepartmentForbidden(t *testing.T) {
	_, _, _, _, svc := newDecisionFixture(nil)

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-9"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceDecideAdminBypassesDepartmentCheck(t *testing.T) {
	outcome := &repository.DecisionOutcome{
		Approval:       models.ApprovalRecord{ID: "appr-1", RequestID: "req-1", Status: models.ApprovalStatusApproved},
		DepartmentName: "Finance",
		RequestID:      "req-1",
		RequestStatus:  models.ClearanceStatusInProgress,
	}
	_, _, _, _, svc := newDecisionFixture(outcome)

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, FullName: "Registrar"}
	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, admin)
	require.NoError(t, err)
}

func TestApprovalServiceDecideOutOfOrder(t *testing.T) {
	store, _, _, _, svc := newDecisionFixture(nil)
	store.decisionErr = &repository.OutOfOrderError{NextApprovalID: "appr-0", NextDepartmentName: "Finance"}

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrOutOfOrder.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "Finance")
}

func TestApprovalServiceDecideAlreadyDecided(t *testing.T) {
	store, _, _, _, svc := newDecisionFixture(nil)
	store.decisionErr = repository.ErrAlreadyDecided

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceDecideFinalizedRequest(t *testing.T) {
	store, _, _, _, svc := newDecisionFixture(nil)
	store.decisionErr = repository.ErrRequestFinalized

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalized.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceDecideDraftRequest(t *testing.T) {
	store, _, _, _, svc := newDecisionFixture(nil)
	store.decisionErr = repository.ErrRequestNotSubmitted

	_, err := svc.Decide(context.Background(), "appr-1", dto.DecisionRequest{Action: models.DecisionApprove}, staffClaims("dept-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "not been submitted")
}

func TestApprovalServiceBulkDecideIsolatesFailures(t *testing.T) {
	outcome := &repository.DecisionOutcome{
		Approval:       models.ApprovalRecord{ID: "appr-1", RequestID: "req-1", Status: models.ApprovalStatusApproved},
		DepartmentName: "Finance",
		RequestID:      "req-1",
		RequestStatus:  models.ClearanceStatusInProgress,
	}
	store, _, _, _, svc := newDecisionFixture(outcome)
	store.records["appr-2"] = pendingRecord("appr-2", "req-1", "dept-9")

	report, err := svc.BulkDecide(context.Background(), dto.BulkDecisionRequest{Items: []dto.BulkDecisionItem{
		{ApprovalID: "appr-1", Action: models.DecisionApprove},
		{ApprovalID: "appr-2", Action: models.DecisionApprove},
		{ApprovalID: "appr-404", Action: models.DecisionApprove},
	}}, staffClaims("dept-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.SucceededCount)
	assert.Equal(t, 2, report.FailedCount)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, appErrors.ErrForbidden.Code, report.Errors[0].Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, report.Errors[1].Code)
}

func TestApprovalServicePendingQueueStaffScoped(t *testing.T) {
	_, _, _, _, svc := newDecisionFixture(nil)

	_, _, err := svc.PendingQueue(context.Background(), staffClaims("dept-1"), "dept-other", 1, 20)
	require.NoError(t, err)

	student := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	_, _, err = svc.PendingQueue(context.Background(), student, "dept-1", 1, 20)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
