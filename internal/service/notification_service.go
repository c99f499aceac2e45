package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mksu-dev/clearance-api/internal/models"
	appErrors "github.com/mksu-dev/clearance-api/pkg/errors"
	"github.com/mksu-dev/clearance-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, page, size int) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	MarkEmailSent(ctx context.Context, id string) error
}

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type notificationMailer interface {
	Configured() bool
	Send(to, subject, body string) error
}

// NotificationService persists and delivers workflow notifications. Emit is
// fire-and-forget: intents are queued and processed by background workers, so
// a slow mail relay never delays a decision response.
type NotificationService struct {
	repo    notificationStore
	users   notificationUserReader
	mailer  notificationMailer
	emailOn bool
	queue   *jobs.Queue
	logger  *zap.Logger
}

// NewNotificationService builds the service and its dispatch queue. Call
// Start before emitting.
func NewNotificationService(repo notificationStore, users notificationUserReader, mailer notificationMailer, emailOn bool, workers, buffer int, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		repo:    repo,
		users:   users,
		mailer:  mailer,
		emailOn: emailOn,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: buffer,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Emit queues an intent for asynchronous delivery. Errors are logged, never
// returned: notification failure must not affect the emitting workflow.
func (s *NotificationService) Emit(intent models.NotificationIntent) {
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    intent.Type,
		Payload: intent,
	}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", intent.Type), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	intent, ok := job.Payload.(models.NotificationIntent)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}

	notification := &models.Notification{
		RecipientID: intent.RecipientID,
		Type:        intent.Type,
		Title:       intent.Title,
		Message:     intent.Message,
		ClearanceID: intent.ClearanceID,
		ApprovalID:  intent.ApprovalID,
	}
	if notification.Type == "" {
		notification.Type = models.NotificationGeneral
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if !s.emailOn || s.mailer == nil || !s.mailer.Configured() {
		return nil
	}

	recipient, err := s.users.FindByID(ctx, intent.RecipientID)
	if err != nil {
		s.logger.Warn("notification recipient lookup failed", zap.String("recipient", intent.RecipientID), zap.Error(err))
		return nil
	}
	if err := s.mailer.Send(recipient.Email, intent.Title, intent.Message); err != nil {
		s.logger.Warn("notification email failed", zap.String("recipient", recipient.Email), zap.Error(err))
		return nil
	}
	if err := s.repo.MarkEmailSent(ctx, notification.ID); err != nil {
		s.logger.Warn("failed to mark email sent", zap.Error(err))
	}
	return nil
}

// List returns the actor's notifications.
func (s *NotificationService) List(ctx context.Context, actor *models.JWTClaims, unreadOnly bool, page, size int) ([]models.Notification, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	notifications, total, err := s.repo.ListForRecipient(ctx, actor.UserID, unreadOnly, page, size)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, total, nil
}

// UnreadCount returns the actor's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.JWTClaims) (int, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	count, err := s.repo.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.MarkRead(ctx, id, actor.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead marks all of the actor's notifications as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.MarkAllRead(ctx, actor.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
