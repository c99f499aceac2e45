package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type clearanceStoreStub struct {
	requests       map[string]*models.ClearanceRequest
	activeRequests map[string]*models.ClearanceRequest
	details        map[string]*models.ClearanceDetail
	summary        *models.ApprovalSummary
	progress       []models.ProgressEntry
	createErr      error
	createdLedgers [][]models.Department
	submitted      []string
}

func (s *clearanceStoreStub) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceDetail, int, error) {
	return nil, 0, nil
}

func (s *clearanceStoreStub) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	if request, ok := s.requests[id]; ok {
		return request, nil
	}
	return nil, sql.ErrNoRows
}

func (s *clearanceStoreStub) FindDetailByID(ctx context.Context, id string) (*models.ClearanceDetail, error) {
	if detail, ok := s.details[id]; ok {
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func (s *clearanceStoreStub) FindActiveByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error) {
	if request, ok := s.activeRequests[studentID]; ok {
		return request, nil
	}
	return nil, sql.ErrNoRows
}

func (s *clearanceStoreStub) CreateWithLedger(ctx context.Context, request *models.ClearanceRequest, departments []models.Department) error {
	if s.createErr != nil {
		return s.createErr
	}
	request.ID = "req-new"
	s.createdLedgers = append(s.createdLedgers, departments)
	return nil
}

func (s *clearanceStoreStub) Submit(ctx context.Context, id string, status models.ClearanceStatus, submissionDate time.Time) error {
	s.submitted = append(s.submitted, id)
	return nil
}

func (s *clearanceStoreStub) Summarize(ctx context.Context, requestID string) (*models.ApprovalSummary, error) {
	return s.summary, nil
}

func (s *clearanceStoreStub) ListProgress(ctx context.Context, requestID string) ([]models.ProgressEntry, error) {
	return s.progress, nil
}

func (s *clearanceStoreStub) Statistics(ctx context.Context) (*models.ClearanceStatistics, error) {
	return &models.ClearanceStatistics{TotalRequests: 1}, nil
}

type registryStub struct {
	sequence []models.Department
	count    int
}

func (s registryStub) ActiveSequence(ctx context.Context) ([]models.Department, error) {
	return s.sequence, nil
}

func (s registryStub) CountActive(ctx context.Context) (int, error) {
	return s.count, nil
}

type paymentCheckerStub struct {
	verified bool
	err      error
}

func (s paymentCheckerStub) IsVerified(ctx context.Context, studentID string) (bool, error) {
	return s.verified, s.err
}

type adminListerStub struct {
	admins []models.User
}

func (s adminListerStub) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	return s.admins, nil
}

func eligibleStudent() *models.StudentDetail {
	return &models.StudentDetail{
		Student: models.Student{
			ID:                 "student-1",
			UserID:             "user-1",
			RegistrationNumber: "MKSU/001/2022",
			EligibilityStatus:  models.EligibilityEligible,
			GraduationYear:     2026,
		},
		FullName: "Jane Mwangi",
	}
}

func newClearanceFixture(store *clearanceStoreStub, registry registryStub, payments paymentCheckerStub, student *models.StudentDetail) (*notifyStub, *auditStub, *ClearanceService) {
	students := studentReaderStub{
		students: map[string]*models.StudentDetail{student.ID: student},
		byUser:   map[string]*models.StudentDetail{student.UserID: student},
	}
	admins := adminListerStub{admins: []models.User{
		{ID: "admin-1", Role: models.RoleAdmin},
		{ID: "admin-2", Role: models.RoleAdmin},
	}}
	notify := &notifyStub{}
	audit := &auditStub{}
	svc := NewClearanceService(store, registry, students, payments, admins, nil, nil, 0, notify, audit, nil, zap.NewNop())
	return notify, audit, svc
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent, FullName: "Jane Mwangi"}
}

func TestClearanceServiceCreateFreezesSequence(t *testing.T) {
	store := &clearanceStoreStub{activeRequests: map[string]*models.ClearanceRequest{}}
	registry := registryStub{sequence: []models.Department{
		{ID: "dept-1", Name: "Finance", ApprovalOrder: 1},
		{ID: "dept-2", Name: "Library", ApprovalOrder: 2},
	}}
	_, audit, svc := newClearanceFixture(store, registry, paymentCheckerStub{}, eligibleStudent())

	request, err := svc.Create(context.Background(), dto.CreateClearanceRequest{}, studentClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ClearanceStatusDraft, request.Status)
	require.Len(t, store.createdLedgers, 1)
	assert.Len(t, store.createdLedgers[0], 2)
	require.Len(t, audit.intents, 1)
	assert.Equal(t, models.AuditActionCreate, audit.intents[0].Action)
}

func TestClearanceServiceCreateIneligibleStudent(t *testing.T) {
	student := eligibleStudent()
	student.EligibilityStatus = models.EligibilityPending
	store := &clearanceStoreStub{}
	_, _, svc := newClearanceFixture(store, registryStub{}, paymentCheckerStub{}, student)

	_, err := svc.Create(context.Background(), dto.CreateClearanceRequest{}, studentClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIneligible.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.createdLedgers)
}

func TestClearanceServiceCreateDuplicateActive(t *testing.T) {
	store := &clearanceStoreStub{activeRequests: map[string]*models.ClearanceRequest{
		"student-1": {ID: "req-open", Status: models.ClearanceStatusInProgress},
	}}
	_, _, svc := newClearanceFixture(store, registryStub{sequence: []models.Department{{ID: "dept-1"}}}, paymentCheckerStub{}, eligibleStudent())

	_, err := svc.Create(context.Background(), dto.CreateClearanceRequest{}, studentClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateRequest.Code, appErrors.FromError(err).Code)
}

func TestClearanceServiceCreateNoActiveDepartments(t *testing.T) {
	store := &clearanceStoreStub{}
	_, _, svc := newClearanceFixture(store, registryStub{}, paymentCheckerStub{}, eligibleStudent())

	_, err := svc.Create(context.Background(), dto.CreateClearanceRequest{}, studentClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClearanceServiceSubmitRequiresVerifiedPayment(t *testing.T) {
	store := &clearanceStoreStub{requests: map[string]*models.ClearanceRequest{
		"req-1": {ID: "req-1", StudentID: "student-1", Status: models.ClearanceStatusDraft},
	}}
	_, _, svc := newClearanceFixture(store, registryStub{count: 2}, paymentCheckerStub{verified: false}, eligibleStudent())

	_, err := svc.Submit(context.Background(), "req-1", studentClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentRequired.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.submitted)
}

func TestClearanceServiceSubmitNotifiesStudentAndAdmins(t *testing.T) {
	store := &clearanceStoreStub{requests: map[string]*models.ClearanceRequest{
		"req-1": {ID: "req-1", StudentID: "student-1", Status: models.ClearanceStatusDraft},
	}}
	notify, audit, svc := newClearanceFixture(store, registryStub{count: 2}, paymentCheckerStub{verified: true}, eligibleStudent())

	request, err := svc.Submit(context.Background(), "req-1", studentClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ClearanceStatusSubmitted, request.Status)
	assert.NotNil(t, request.SubmissionDate)
	require.Len(t, notify.intents, 3)
	recipients := make([]string, 0, len(notify.intents))
	for _, intent := range notify.intents {
		assert.Equal(t, models.NotificationClearanceSubmitted, intent.Type)
		recipients = append(recipients, intent.RecipientID)
	}
	assert.Equal(t, []string{"user-1", "admin-1", "admin-2"}, recipients)
	require.Len(t, audit.intents, 1)
	assert.Equal(t, models.AuditActionSubmit, audit.intents[0].Action)
}

func TestClearanceServiceSubmitFinalizedRequest(t *testing.T) {
	store := &clearanceStoreStub{requests: map[string]*models.ClearanceRequest{
		"req-1": {ID: "req-1", StudentID: "student-1", Status: models.ClearanceStatusRejected},
	}}
	_, _, svc := newClearanceFixture(store, registryStub{}, paymentCheckerStub{verified: true}, eligibleStudent())

	_, err := svc.Submit(context.Background(), "req-1", studentClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalized.Code, appErrors.FromError(err).Code)
}

func TestClearanceServiceProgressUsesLiveDepartmentCount(t *testing.T) {
	store := &clearanceStoreStub{
		requests: map[string]*models.ClearanceRequest{
			"req-1": {ID: "req-1", StudentID: "student-1", Status: models.ClearanceStatusInProgress},
		},
		summary: &models.ApprovalSummary{Total: 3, Approved: 2, Pending: 1},
		progress: []models.ProgressEntry{
			{ApprovalID: "appr-1", Order: 1, Status: "APPROVED"},
			{ApprovalID: "appr-2", Order: 2, Status: "APPROVED"},
			{ApprovalID: "appr-3", Order: 3, Status: "PENDING"},
		},
	}
	// Registry grew to four departments after this ledger was frozen: the
	// percentage drops, the ledger does not.
	_, _, svc := newClearanceFixture(store, registryStub{count: 4}, paymentCheckerStub{}, eligibleStudent())

	progress, err := svc.Progress(context.Background(), "req-1", studentClaims())
	require.NoError(t, err)
	assert.Equal(t, 50, progress.CompletionPercentage)
	assert.Equal(t, 4, progress.TotalDepartments)
	assert.Len(t, progress.Entries, 3)
}

func TestClearanceServiceStudentCannotReadOthers(t *testing.T) {
	store := &clearanceStoreStub{
		details: map[string]*models.ClearanceDetail{
			"req-9": {ClearanceRequest: models.ClearanceRequest{ID: "req-9", StudentID: "student-other"}},
		},
	}
	_, _, svc := newClearanceFixture(store, registryStub{}, paymentCheckerStub{}, eligibleStudent())

	_, err := svc.Get(context.Background(), "req-9", studentClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
