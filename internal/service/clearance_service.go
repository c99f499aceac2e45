package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/repository"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
	"github.com/mksu-dev/clearance-api/pkg/export"
)

type clearanceStore interface {
	List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClearanceDetail, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error)
	CreateWithLedger(ctx context.Context, request *models.ClearanceRequest, departments []models.Department) error
	Submit(ctx context.Context, id string, status models.ClearanceStatus, submissionDate time.Time) error
	Summarize(ctx context.Context, requestID string) (*models.ApprovalSummary, error)
	ListProgress(ctx context.Context, requestID string) ([]models.ProgressEntry, error)
	Statistics(ctx context.Context) (*models.ClearanceStatistics, error)
}

type clearanceRegistry interface {
	ActiveSequence(ctx context.Context) ([]models.Department, error)
	CountActive(ctx context.Context) (int, error)
}

type clearanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
}

type paymentChecker interface {
	IsVerified(ctx context.Context, studentID string) (bool, error)
}

type clearanceAdminLister interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type statisticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type certificateRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

// ClearanceService orchestrates the clearance request lifecycle: creation with
// a frozen department snapshot, submission behind the payment gate, progress
// reporting and the completion certificate.
type ClearanceService struct {
	repo        clearanceStore
	registry    clearanceRegistry
	students    clearanceStudentReader
	payments    paymentChecker
	admins      clearanceAdminLister
	certificate certificateRenderer
	statsCache  statisticsCache
	statsTTL    time.Duration
	notify      notificationEmitter
	audit       auditEmitter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClearanceService builds a ClearanceService with sane defaults.
func NewClearanceService(
	repo clearanceStore,
	registry clearanceRegistry,
	students clearanceStudentReader,
	payments paymentChecker,
	admins clearanceAdminLister,
	certificate certificateRenderer,
	statsCache statisticsCache,
	statsTTL time.Duration,
	notify notificationEmitter,
	audit auditEmitter,
	validate *validator.Validate,
	logger *zap.Logger,
) *ClearanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if statsTTL <= 0 {
		statsTTL = 10 * time.Minute
	}
	return &ClearanceService{
		repo:        repo,
		registry:    registry,
		students:    students,
		payments:    payments,
		admins:      admins,
		certificate: certificate,
		statsCache:  statsCache,
		statsTTL:    statsTTL,
		notify:      notify,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// Create opens a draft clearance request for the student, freezing the current
// active department sequence into the approval ledger.
func (s *ClearanceService) Create(ctx context.Context, req dto.CreateClearanceRequest, actor *models.JWTClaims) (*models.ClearanceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clearance payload")
	}

	student, err := s.resolveStudent(ctx, req.StudentID, actor)
	if err != nil {
		return nil, err
	}

	if student.EligibilityStatus != models.EligibilityEligible {
		return nil, appErrors.Clone(appErrors.ErrIneligible, "student is not eligible for clearance")
	}

	if _, err := s.repo.FindActiveByStudent(ctx, student.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, "student already has a clearance request in progress")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing requests")
	}

	departments, err := s.registry.ActiveSequence(ctx)
	if err != nil {
		return nil, err
	}
	if len(departments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "no active departments configured")
	}

	request := &models.ClearanceRequest{
		StudentID: student.ID,
		Status:    models.ClearanceStatusDraft,
	}
	if err := s.repo.CreateWithLedger(ctx, request, departments); err != nil {
		if errors.Is(err, repository.ErrLedgerExists) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, "student already has a clearance request in progress")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clearance request")
	}

	s.emitAudit(actor, models.AuditActionCreate, request.ID, "clearance request created", map[string]interface{}{
		"student_id": student.ID, "departments": len(departments),
	})
	return request, nil
}

// Submit moves a draft request into the workflow. The payment gate is checked
// here, not at creation.
func (s *ClearanceService) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}

	if err := s.ensureOwnershipOrStaff(ctx, request, actor); err != nil {
		return nil, err
	}

	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "clearance request already finalized")
	}
	if !models.CanTransition(request.Status, models.ClearanceStatusSubmitted) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "clearance request already submitted")
	}

	verified, err := s.payments.IsVerified(ctx, request.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check payment status")
	}
	if !verified {
		return nil, appErrors.Clone(appErrors.ErrPaymentRequired, "payment verification required before submission")
	}

	now := time.Now().UTC()
	if err := s.repo.Submit(ctx, id, models.ClearanceStatusSubmitted, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit clearance request")
	}

	request.Status = models.ClearanceStatusSubmitted
	request.SubmissionDate = &now

	s.notifySubmitted(ctx, request)
	s.emitAudit(actor, models.AuditActionSubmit, request.ID, "clearance request submitted", nil)
	return request, nil
}

// List returns requests matching the filter. Handlers scope the filter for
// student actors.
func (s *ClearanceService) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceDetail, int, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearance requests")
	}
	return requests, total, nil
}

// Get returns one request with its student detail.
func (s *ClearanceService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if err := s.ensureOwnershipOrStaff(ctx, &detail.ClearanceRequest, actor); err != nil {
		return nil, err
	}
	return detail, nil
}

// Progress builds the derived per-department progress view. The completion
// percentage is computed against the live active-department count, so registry
// growth after submission lowers the percentage without touching the ledger.
func (s *ClearanceService) Progress(ctx context.Context, id string, actor *models.JWTClaims) (*models.ClearanceProgress, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if err := s.ensureOwnershipOrStaff(ctx, request, actor); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListProgress(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval progress")
	}
	summary, err := s.repo.Summarize(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize approvals")
	}

	liveTotal, err := s.registry.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	percentage := 0
	if liveTotal > 0 {
		percentage = summary.Decided() * 100 / liveTotal
		if percentage > 100 {
			percentage = 100
		}
	}

	return &models.ClearanceProgress{
		RequestID:            id,
		OverallStatus:        request.Status,
		CompletionPercentage: percentage,
		TotalDepartments:     liveTotal,
		ApprovedCount:        summary.Approved,
		PendingCount:         summary.Pending,
		RejectedCount:        summary.Rejected,
		Entries:              entries,
	}, nil
}

// Statistics aggregates request counts, cache-first.
func (s *ClearanceService) Statistics(ctx context.Context) (*models.ClearanceStatistics, error) {
	cacheKey := repository.CacheKeyStatisticsScope + "requests"
	if s.statsCache != nil {
		var cached models.ClearanceStatistics
		if err := s.statsCache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("statistics cache read failed", zap.Error(err))
		}
	}

	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
	}

	if s.statsCache != nil {
		if err := s.statsCache.Set(ctx, cacheKey, stats, s.statsTTL); err != nil {
			s.logger.Warn("statistics cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Certificate renders the graduation clearance certificate for a completed
// request.
func (s *ClearanceService) Certificate(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error) {
	detail, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.ClearanceStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "certificate is only available for completed requests")
	}

	entries, err := s.repo.ListProgress(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval progress")
	}

	student, err := s.students.FindByID(ctx, detail.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	completion := time.Now().UTC()
	if detail.CompletionDate != nil {
		completion = *detail.CompletionDate
	}

	data := export.CertificateData{
		StudentName:        student.FullName,
		RegistrationNumber: student.RegistrationNumber,
		Program:            student.Program,
		Faculty:            student.Faculty,
		GraduationYear:     student.GraduationYear,
		CompletionDate:     completion,
	}
	for _, entry := range entries {
		signoff := export.CertificateSignoff{
			Order:          entry.Order,
			DepartmentName: entry.DepartmentName,
			DepartmentCode: entry.DepartmentCode,
		}
		if entry.ApprovedBy != nil {
			signoff.ApprovedBy = *entry.ApprovedBy
		}
		if entry.ApprovalDate != nil {
			signoff.ApprovalDate = *entry.ApprovalDate
		}
		data.Signoffs = append(data.Signoffs, signoff)
	}

	pdf, err := s.certificate.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return pdf, nil
}

func (s *ClearanceService) resolveStudent(ctx context.Context, requestedID string, actor *models.JWTClaims) (*models.StudentDetail, error) {
	if actor.Role == models.RoleStudent {
		student, err := s.students.FindByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		return student, nil
	}
	if requestedID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	student, err := s.students.FindByID(ctx, requestedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// ensureOwnershipOrStaff permits staff and admin actors, and students only on
// their own request.
func (s *ClearanceService) ensureOwnershipOrStaff(ctx context.Context, request *models.ClearanceRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil
	}
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrForbidden
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ID != request.StudentID {
		return appErrors.ErrForbidden
	}
	return nil
}

// notifySubmitted fans the submission notice out to the student and every
// active admin account.
func (s *ClearanceService) notifySubmitted(ctx context.Context, request *models.ClearanceRequest) {
	if s.notify == nil {
		return
	}
	student, err := s.students.FindByID(ctx, request.StudentID)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipient", zap.Error(err))
		return
	}
	s.notify.Emit(models.NotificationIntent{
		RecipientID: student.UserID,
		Type:        models.NotificationClearanceSubmitted,
		Title:       "Clearance submitted",
		Message:     "Your clearance request has been submitted and is awaiting departmental approval.",
		ClearanceID: &request.ID,
	})

	if s.admins == nil {
		return
	}
	admins, err := s.admins.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Warn("failed to list admins for submission notice", zap.Error(err))
		return
	}
	for _, admin := range admins {
		s.notify.Emit(models.NotificationIntent{
			RecipientID: admin.ID,
			Type:        models.NotificationClearanceSubmitted,
			Title:       "Clearance submitted",
			Message:     fmt.Sprintf("%s (%s) submitted a clearance request.", student.FullName, student.RegistrationNumber),
			ClearanceID: &request.ID,
		})
	}
}

func (s *ClearanceService) emitAudit(actor *models.JWTClaims, action, entityID, description string, changes map[string]interface{}) {
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
		Entity:      "clearance_request",
		EntityID:    entityID,
		Description: description,
		Changes:     changes,
	})
}
