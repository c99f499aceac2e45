package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/models"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
	"github.com/mksu-dev/clearance-api/pkg/jobs"
)

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
	ListForEntity(ctx context.Context, entity, entityID string, limit int) ([]models.AuditLog, error)
}

// AuditService appends workflow events to the audit trail through a
// background queue. Record is fire-and-forget.
type AuditService struct {
	repo   auditStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService builds the service and its recording queue. Call Start
// before recording.
func NewAuditService(repo auditStore, workers, buffer int, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: buffer,
		Logger:     logger,
	})
	return s
}

// Start launches the recording workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the recording workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record queues an audit intent. Errors are logged, never returned.
func (s *AuditService) Record(intent models.AuditIntent) {
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    intent.Action,
		Payload: intent,
	}); err != nil {
		s.logger.Warn("failed to enqueue audit record", zap.String("action", intent.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	intent, ok := job.Payload.(models.AuditIntent)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID))
		return nil
	}

	var changes []byte
	if intent.Changes != nil {
		encoded, err := json.Marshal(intent.Changes)
		if err != nil {
			s.logger.Warn("failed to encode audit changes", zap.Error(err))
		} else {
			changes = encoded
		}
	}

	log := &models.AuditLog{
		ActorID:     intent.ActorID,
		Action:      intent.Action,
		Entity:      intent.Entity,
		EntityID:    intent.EntityID,
		Description: intent.Description,
		Changes:     changes,
		IPAddress:   intent.IPAddress,
	}
	if err := s.repo.Create(ctx, log); err != nil {
		return fmt.Errorf("persist audit log: %w", err)
	}
	return nil
}

// List returns audit records matching the filter.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return logs, total, nil
}

// Trail returns one entity's audit records, newest first.
func (s *AuditService) Trail(ctx context.Context, entity, entityID string, limit int) ([]models.AuditLog, error) {
	logs, err := s.repo.ListForEntity(ctx, entity, entityID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return logs, nil
}
