package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
	ExistsByRegistration(ctx context.Context, registration string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

type studentUserWriter interface {
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
}

// StudentService manages student profiles and the eligibility gate.
type StudentService struct {
	repo      studentStore
	users     studentUserWriter
	audit     auditEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService builds a StudentService with sane defaults.
func NewStudentService(repo studentStore, users studentUserWriter, audit auditEmitter, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, audit: audit, validator: validate, logger: logger}
}

// List returns students matching the filter. Students may only see themselves;
// the handler scopes the filter before calling.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, total, nil
}

// Get returns one student profile.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetByUser returns the profile owned by a user account.
func (s *StudentService) GetByUser(ctx context.Context, userID string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student together with its user account.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest, actor *models.JWTClaims) (*models.StudentDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	emailTaken, err := s.users.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if emailTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	regTaken, err := s.repo.ExistsByRegistration(ctx, req.RegistrationNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration number")
	}
	if regTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleStudent,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user account")
	}

	admissionYear := req.AdmissionYear
	student := &models.Student{
		UserID:             user.ID,
		RegistrationNumber: req.RegistrationNumber,
		Faculty:            req.Faculty,
		Program:            req.Program,
		AdmissionYear:      &admissionYear,
		GraduationYear:     req.GraduationYear,
		EligibilityStatus:  models.EligibilityPending,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.emitAudit(actor, models.AuditActionCreate, student.ID, "student registered", map[string]interface{}{
		"registration_number": student.RegistrationNumber,
	})

	detail := &models.StudentDetail{Student: *student, FullName: user.FullName, Email: user.Email}
	return detail, nil
}

// Update edits a student profile.
func (s *StudentService) Update(ctx context.Context, id string, req dto.UpdateStudentRequest, actor *models.JWTClaims) (*models.StudentDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	regTaken, err := s.repo.ExistsByRegistration(ctx, req.RegistrationNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration number")
	}
	if regTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already registered")
	}

	admissionYear := req.AdmissionYear
	student := detail.Student
	student.RegistrationNumber = req.RegistrationNumber
	student.Faculty = req.Faculty
	student.Program = req.Program
	student.AdmissionYear = &admissionYear
	student.GraduationYear = req.GraduationYear

	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.emitAudit(actor, models.AuditActionUpdate, student.ID, "student updated", nil)

	detail.Student = student
	return detail, nil
}

// SetEligibility updates the student's graduation eligibility status.
func (s *StudentService) SetEligibility(ctx context.Context, id string, req dto.UpdateEligibilityRequest, actor *models.JWTClaims) (*models.StudentDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid eligibility payload")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := detail.EligibilityStatus
	student := detail.Student
	student.EligibilityStatus = req.Status
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update eligibility")
	}

	s.emitAudit(actor, models.AuditActionUpdate, student.ID, "eligibility updated", map[string]interface{}{
		"from": previous, "to": req.Status,
	})

	detail.Student = student
	return detail, nil
}

func (s *StudentService) emitAudit(actor *models.JWTClaims, action, entityID, description string, changes map[string]interface{}) {
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
		Entity:      "student",
		EntityID:    entityID,
		Description: description,
		Changes:     changes,
	})
}
