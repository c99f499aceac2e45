package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/repository"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type approvalStore interface {
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ApprovalRecord, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApprovalDetail, error)
	NextPendingInOrder(ctx context.Context, requestID string) (*models.ApprovalDetail, error)
	ApplyDecision(ctx context.Context, input repository.DecisionInput) (*repository.DecisionOutcome, error)
	UpdateEvidence(ctx context.Context, id, filePath string) error
	ListPendingForDepartment(ctx context.Context, departmentID string, page, size int) ([]models.ApprovalDetail, int, error)
	Statistics(ctx context.Context, departmentID string) ([]models.ApprovalStatistics, error)
}

type approvalStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type approvalClearanceReader interface {
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
}

type approvalStaffLister interface {
	ListActiveByDepartment(ctx context.Context, departmentID string) ([]models.User, error)
}

type evidenceStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
}

type evidenceSigner interface {
	Generate(approvalID, relPath string) (string, time.Time, error)
	Parse(token string) (approvalID, relPath string, expiresAt time.Time, err error)
}

type decisionMetrics interface {
	RecordDecision(action string, outcome models.ClearanceStatus)
}

// ApprovalService applies department decisions to the approval ledger. All
// workflow guards (ordering, immutability, finalized requests) live in the
// transactional repository; this layer adds authorization, input rules,
// evidence handling and the asynchronous side effects.
type ApprovalService struct {
	repo      approvalStore
	requests  approvalClearanceReader
	students  approvalStudentReader
	staff     approvalStaffLister
	storage   evidenceStorage
	signer    evidenceSigner
	maxUpload int64
	metrics   decisionMetrics
	notify    notificationEmitter
	audit     auditEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApprovalService builds an ApprovalService with sane defaults.
func NewApprovalService(
	repo approvalStore,
	requests approvalClearanceReader,
	students approvalStudentReader,
	staff approvalStaffLister,
	storage evidenceStorage,
	signer evidenceSigner,
	maxUpload int64,
	metrics decisionMetrics,
	notify notificationEmitter,
	audit auditEmitter,
	validate *validator.Validate,
	logger *zap.Logger,
) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	return &ApprovalService{
		repo:      repo,
		requests:  requests,
		students:  students,
		staff:     staff,
		storage:   storage,
		signer:    signer,
		maxUpload: maxUpload,
		metrics:   metrics,
		notify:    notify,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Decide applies one approve/reject decision on behalf of the actor.
func (s *ApprovalService) Decide(ctx context.Context, approvalID string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.ApprovalDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	if req.Action == models.DecisionReject && strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	approval, err := s.repo.FindByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval record")
	}

	if !models.CanDecideFor(actor.Role, actor.DepartmentID, approval.DepartmentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to decide for this department")
	}

	outcome, err := s.repo.ApplyDecision(ctx, repository.DecisionInput{
		ApprovalID: approvalID,
		Action:     req.Action,
		ActorID:    actor.UserID,
		Reason:     strings.TrimSpace(req.Reason),
		Notes:      strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return nil, s.mapDecisionError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(string(req.Action), outcome.RequestStatus)
	}
	s.emitDecisionEffects(ctx, outcome, actor)

	detail, err := s.repo.FindDetailByID(ctx, approvalID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload approval record")
	}
	return detail, nil
}

// BulkDecide applies decisions best-effort; items fail independently and the
// report carries per-item error codes.
func (s *ApprovalService) BulkDecide(ctx context.Context, req dto.BulkDecisionRequest, actor *models.JWTClaims) (*models.BulkDecisionReport, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk decision payload")
	}

	report := &models.BulkDecisionReport{}
	for _, item := range req.Items {
		_, err := s.Decide(ctx, item.ApprovalID, dto.DecisionRequest{
			Action: item.Action,
			Reason: item.Reason,
			Notes:  item.Notes,
		}, actor)
		if err != nil {
			appErr := appErrors.FromError(err)
			report.FailedCount++
			report.Errors = append(report.Errors, models.BulkDecisionError{
				ApprovalID: item.ApprovalID,
				Code:       appErr.Code,
				Message:    appErr.Message,
			})
			continue
		}
		report.SucceededCount++
	}
	return report, nil
}

// List returns approval records matching the filter.
func (s *ApprovalService) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalDetail, int, error) {
	approvals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, total, nil
}

// Get returns one approval record with context.
func (s *ApprovalService) Get(ctx context.Context, id string) (*models.ApprovalDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval record")
	}
	return detail, nil
}

// PendingQueue returns the actionable records for the actor's department.
func (s *ApprovalService) PendingQueue(ctx context.Context, actor *models.JWTClaims, departmentID string, page, size int) ([]models.ApprovalDetail, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		if departmentID == "" {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "department_id is required")
		}
	case models.RoleDepartmentStaff:
		if actor.DepartmentID == nil {
			return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "staff account has no department")
		}
		departmentID = *actor.DepartmentID
	default:
		return nil, 0, appErrors.ErrForbidden
	}

	approvals, total, err := s.repo.ListPendingForDepartment(ctx, departmentID, page, size)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending approvals")
	}
	return approvals, total, nil
}

// MyDecisions returns decisions made by the actor.
func (s *ApprovalService) MyDecisions(ctx context.Context, actor *models.JWTClaims, page, size int) ([]models.ApprovalDetail, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	return s.List(ctx, models.ApprovalFilter{DecidedBy: actor.UserID, Page: page, PageSize: size})
}

// Statistics aggregates decision throughput. Staff see their department only.
func (s *ApprovalService) Statistics(ctx context.Context, actor *models.JWTClaims, departmentID string) ([]models.ApprovalStatistics, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleDepartmentStaff {
		if actor.DepartmentID == nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "staff account has no department")
		}
		departmentID = *actor.DepartmentID
	}
	stats, err := s.repo.Statistics(ctx, departmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute approval statistics")
	}
	return stats, nil
}

// AttachEvidence stores an uploaded supporting document on a pending record.
func (s *ApprovalService) AttachEvidence(ctx context.Context, approvalID, filename string, size int64, r io.Reader, actor *models.JWTClaims) (*models.ApprovalDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "evidence storage not configured")
	}
	if size > s.maxUpload {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("evidence file exceeds %d bytes", s.maxUpload))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf", ".png", ".jpg", ".jpeg":
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence must be a PDF or image file")
	}

	approval, err := s.repo.FindByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval record")
	}
	if !models.CanDecideFor(actor.Role, actor.DepartmentID, approval.DepartmentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to attach evidence for this department")
	}
	if approval.Status.Decided() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "approval already decided")
	}

	relPath := fmt.Sprintf("%s/%s%s", approval.RequestID, uuid.NewString(), ext)
	stored, err := s.storage.SaveStream(relPath, io.LimitReader(r, s.maxUpload))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence file")
	}

	if err := s.repo.UpdateEvidence(ctx, approvalID, stored); err != nil {
		if errors.Is(err, repository.ErrAlreadyDecided) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "approval already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach evidence")
	}

	s.emitAudit(actor, models.AuditActionUpdate, approvalID, "evidence attached", map[string]interface{}{"file": stored})
	return s.Get(ctx, approvalID)
}

// EvidenceURL mints a signed, time-limited download token for the record's
// evidence file.
func (s *ApprovalService) EvidenceURL(ctx context.Context, approvalID string, actor *models.JWTClaims) (string, time.Time, error) {
	if actor == nil {
		return "", time.Time{}, appErrors.ErrUnauthorized
	}
	if s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "evidence signing not configured")
	}

	approval, err := s.repo.FindByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "approval record not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval record")
	}
	if approval.EvidenceFile == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "no evidence attached")
	}

	token, expires, err := s.signer.Generate(approvalID, *approval.EvidenceFile)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign evidence URL")
	}
	return token, expires, nil
}

// OpenEvidence validates a signed token and opens the backing file.
func (s *ApprovalService) OpenEvidence(ctx context.Context, token string) (*os.File, error) {
	if s.signer == nil || s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "evidence storage not configured")
	}
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid evidence token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence file not found")
	}
	return file, nil
}

func (s *ApprovalService) mapDecisionError(err error) error {
	var outOfOrder *repository.OutOfOrderError
	switch {
	case errors.As(err, &outOfOrder):
		return appErrors.Clone(appErrors.ErrOutOfOrder,
			fmt.Sprintf("approvals must be processed in order; next department: %s", outOfOrder.NextDepartmentName))
	case errors.Is(err, repository.ErrAlreadyDecided):
		return appErrors.Clone(appErrors.ErrAlreadyDecided, "approval already decided")
	case errors.Is(err, repository.ErrRequestFinalized):
		return appErrors.Clone(appErrors.ErrFinalized, "clearance request already finalized")
	case errors.Is(err, repository.ErrRequestNotSubmitted):
		return appErrors.Clone(appErrors.ErrConflict, "clearance request has not been submitted")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "approval record not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}
}

// emitDecisionEffects fans out notifications and audit entries after the
// decision transaction committed. Failures here never unwind the decision.
func (s *ApprovalService) emitDecisionEffects(ctx context.Context, outcome *repository.DecisionOutcome, actor *models.JWTClaims) {
	request, err := s.requests.FindByID(ctx, outcome.RequestID)
	if err != nil {
		s.logger.Warn("failed to load request for decision effects", zap.Error(err))
		return
	}
	student, err := s.students.FindByID(ctx, request.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for decision effects", zap.Error(err))
		return
	}

	action := models.AuditActionApprove
	if outcome.Approval.Status == models.ApprovalStatusRejected {
		action = models.AuditActionReject
	}
	s.emitAudit(actor, action, outcome.Approval.ID, fmt.Sprintf("%s decision by %s", outcome.DepartmentName, actor.FullName), map[string]interface{}{
		"clearance_request_id": outcome.RequestID,
		"request_status":       outcome.RequestStatus,
	})

	if s.notify == nil {
		return
	}
	approvalID := outcome.Approval.ID
	switch outcome.RequestStatus {
	case models.ClearanceStatusCompleted:
		s.notify.Emit(models.NotificationIntent{
			RecipientID: student.UserID,
			Type:        models.NotificationClearanceApproved,
			Title:       "Clearance completed",
			Message:     "All departments have approved your clearance. You are cleared for graduation.",
			ClearanceID: &outcome.RequestID,
			ApprovalID:  &approvalID,
		})
	case models.ClearanceStatusRejected:
		reason := ""
		if outcome.Approval.RejectionReason != nil {
			reason = *outcome.Approval.RejectionReason
		}
		s.notify.Emit(models.NotificationIntent{
			RecipientID: student.UserID,
			Type:        models.NotificationClearanceRejected,
			Title:       "Clearance rejected",
			Message:     fmt.Sprintf("%s rejected your clearance request: %s", outcome.DepartmentName, reason),
			ClearanceID: &outcome.RequestID,
			ApprovalID:  &approvalID,
		})
	default:
		s.notify.Emit(models.NotificationIntent{
			RecipientID: student.UserID,
			Type:        models.NotificationApprovalAction,
			Title:       "Department approval recorded",
			Message:     fmt.Sprintf("%s approved your clearance request.", outcome.DepartmentName),
			ClearanceID: &outcome.RequestID,
			ApprovalID:  &approvalID,
		})
		s.notifyNextDepartment(ctx, outcome, student)
	}
}

// notifyNextDepartment gives the newly unblocked department a heads-up that a
// request reached the front of its queue.
func (s *ApprovalService) notifyNextDepartment(ctx context.Context, outcome *repository.DecisionOutcome, student *models.StudentDetail) {
	if s.staff == nil {
		return
	}
	next, err := s.repo.NextPendingInOrder(ctx, outcome.RequestID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to find next pending approval", zap.Error(err))
		}
		return
	}
	recipients, err := s.staff.ListActiveByDepartment(ctx, next.DepartmentID)
	if err != nil {
		s.logger.Warn("failed to list department staff", zap.Error(err))
		return
	}
	nextID := next.ID
	for _, recipient := range recipients {
		s.notify.Emit(models.NotificationIntent{
			RecipientID: recipient.ID,
			Type:        models.NotificationApprovalPending,
			Title:       "Clearance awaiting your department",
			Message:     fmt.Sprintf("%s's clearance request is now awaiting %s.", student.FullName, next.DepartmentName),
			ClearanceID: &outcome.RequestID,
			ApprovalID:  &nextID,
		})
	}
}

func (s *ApprovalService) emitAudit(actor *models.JWTClaims, action, entityID, description string, changes map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var actorID *string
	if actor != nil {
		actorID = &actor.UserID
	}
	s.audit.Record(models.AuditIntent{
		ActorID:     actorID,
		Action:      action,
		Entity:      "approval",
		EntityID:    entityID,
		Description: description,
		Changes:     changes,
	})
}
