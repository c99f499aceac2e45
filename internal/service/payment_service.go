package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type paymentStore interface {
	FindByStudent(ctx context.Context, studentID string) (*models.Payment, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	IsVerified(ctx context.Context, studentID string) (bool, error)
	Create(ctx context.Context, payment *models.Payment) error
	Verify(ctx context.Context, id, verifiedBy string) error
}

type paymentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type notificationEmitter interface {
	Emit(intent models.NotificationIntent)
}

// PaymentService records and verifies clearance fee payments. Verification is
// a manual act by finance staff; the workflow consumes only the verified flag.
type PaymentService struct {
	repo      paymentStore
	students  paymentStudentReader
	notify    notificationEmitter
	audit     auditEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService builds a PaymentService with sane defaults.
func NewPaymentService(repo paymentStore, students paymentStudentReader, notify notificationEmitter, audit auditEmitter, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{repo: repo, students: students, notify: notify, audit: audit, validator: validate, logger: logger}
}

// Record stores a new payment awaiting verification.
func (s *PaymentService) Record(ctx context.Context, req dto.RecordPaymentRequest, actor *models.JWTClaims) (*models.Payment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	payment := &models.Payment{
		StudentID: req.StudentID,
		Amount:    req.Amount,
		Method:    models.PaymentMethod(req.Method),
		Reference: req.Reference,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.emitAudit(actor, models.AuditActionCreate, payment.ID, "payment recorded", map[string]interface{}{
		"student_id": payment.StudentID, "amount": payment.Amount.String(), "reference": payment.Reference,
	})
	return payment, nil
}

// Verify marks a payment as verified and notifies the student.
func (s *PaymentService) Verify(ctx context.Context, id string, actor *models.JWTClaims) (*models.Payment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Verified {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment already verified")
	}

	if err := s.repo.Verify(ctx, id, actor.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify payment")
	}

	student, err := s.students.FindByID(ctx, payment.StudentID)
	if err == nil && s.notify != nil {
		s.notify.Emit(models.NotificationIntent{
			RecipientID: student.UserID,
			Type:        models.NotificationPaymentVerified,
			Title:       "Payment verified",
			Message:     "Your clearance fee payment has been verified. You can now submit your clearance request.",
		})
	}

	s.emitAudit(actor, models.AuditActionUpdate, payment.ID, "payment verified", map[string]interface{}{
		"student_id": payment.StudentID,
	})

	payment.Verified = true
	payment.VerifiedBy = &actor.UserID
	return payment, nil
}

// StatusForStudent reports the student's latest payment, or nil when none
// exists.
func (s *PaymentService) StatusForStudent(ctx context.Context, studentID string) (*models.Payment, error) {
	payment, err := s.repo.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

func (s *PaymentService) emitAudit(actor *models.JWTClaims, action, entityID, description string, changes map[string]interface{}) {
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
		Entity:      "payment",
		EntityID:    entityID,
		Description: description,
		Changes:     changes,
	})
}
