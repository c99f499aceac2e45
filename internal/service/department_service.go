package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/dto"
	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/repository"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
)

type departmentStore interface {
	ListActiveOrdered(ctx context.Context) ([]models.Department, error)
	CountActive(ctx context.Context) (int, error)
	List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error)
	FindByID(ctx context.Context, id string) (*models.Department, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, department *models.Department) error
	Update(ctx context.Context, department *models.Department) error
	Deactivate(ctx context.Context, id string) error
}

type registryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type auditEmitter interface {
	Record(intent models.AuditIntent)
}

// DepartmentService manages the clearance department registry. The ordered
// active list is the snapshot source for new ledgers and is served from cache;
// every mutation invalidates the cached view explicitly.
type DepartmentService struct {
	repo      departmentStore
	cache     registryCache
	cacheTTL  time.Duration
	audit     auditEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService builds a DepartmentService with sane defaults.
func NewDepartmentService(repo departmentStore, cache registryCache, cacheTTL time.Duration, audit auditEmitter, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DepartmentService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// ActiveSequence returns the canonical approval sequence, cache-first.
func (s *DepartmentService) ActiveSequence(ctx context.Context) ([]models.Department, error) {
	if s.cache != nil {
		var cached []models.Department
		if err := s.cache.Get(ctx, repository.CacheKeyRegistry, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("registry cache read failed", zap.Error(err))
		}
	}

	departments, err := s.repo.ListActiveOrdered(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department registry")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, repository.CacheKeyRegistry, departments, s.cacheTTL); err != nil {
			s.logger.Warn("registry cache write failed", zap.Error(err))
		}
	}
	return departments, nil
}

// CountActive returns the live number of active departments.
func (s *DepartmentService) CountActive(ctx context.Context) (int, error) {
	count, err := s.repo.CountActive(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count departments")
	}
	return count, nil
}

// List returns departments matching the filter.
func (s *DepartmentService) List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error) {
	departments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, total, nil
}

// Get returns one department.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

// Create registers a new department and invalidates the registry cache.
func (s *DepartmentService) Create(ctx context.Context, req dto.CreateDepartmentRequest, actor *models.JWTClaims) (*models.Department, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	exists, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "department code already in use")
	}

	department := &models.Department{
		Name:          req.Name,
		Code:          req.Code,
		Type:          req.Type,
		HeadEmail:     req.HeadEmail,
		Description:   req.Description,
		Active:        true,
		ApprovalOrder: req.ApprovalOrder,
	}
	if err := s.repo.Create(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}

	s.invalidateRegistry(ctx)
	s.emitAudit(actor, models.AuditActionCreate, department.ID, "department created", map[string]interface{}{
		"name": department.Name, "code": department.Code, "approval_order": department.ApprovalOrder,
	})
	return department, nil
}

// Update edits a department. Existing ledgers keep their frozen snapshot.
func (s *DepartmentService) Update(ctx context.Context, id string, req dto.UpdateDepartmentRequest, actor *models.JWTClaims) (*models.Department, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	department, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "department code already in use")
	}

	department.Name = req.Name
	department.Code = req.Code
	department.Type = req.Type
	department.HeadEmail = req.HeadEmail
	department.Description = req.Description
	department.Active = req.Active
	department.ApprovalOrder = req.ApprovalOrder

	if err := s.repo.Update(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}

	s.invalidateRegistry(ctx)
	s.emitAudit(actor, models.AuditActionUpdate, department.ID, "department updated", map[string]interface{}{
		"name": department.Name, "active": department.Active, "approval_order": department.ApprovalOrder,
	})
	return department, nil
}

// Deactivate removes a department from future ledgers.
func (s *DepartmentService) Deactivate(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate department")
	}

	s.invalidateRegistry(ctx)
	s.emitAudit(actor, models.AuditActionDelete, id, "department deactivated", nil)
	return nil
}

func (s *DepartmentService) invalidateRegistry(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.CacheKeyRegistry); err != nil {
		s.logger.Warn("registry cache invalidation failed", zap.Error(err))
	}
}

func (s *DepartmentService) emitAudit(actor *models.JWTClaims, action, entityID, description string, changes map[string]interface{}) {
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
		Entity:      "department",
		EntityID:    entityID,
		Description: description,
		Changes:     changes,
	})
}
