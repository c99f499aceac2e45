package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mksu-dev/clearance-api/internal/models"
)

// NotificationRepository manages persisted in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, recipient_id, notification_type, title, message, clearance_request_id,
        approval_id, read, read_at, email_sent, email_sent_at, created_at`

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, recipient_id, notification_type, title, message, clearance_request_id,
        approval_id, read, read_at, email_sent, email_sent_at, created_at)
        VALUES (:id, :recipient_id, :notification_type, :title, :message, :clearance_request_id,
        :approval_id, :read, :read_at, :email_sent, :email_sent_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListForRecipient returns a user's notifications, newest first.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, page, size int) ([]models.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	where := "recipient_id = $1"
	if unreadOnly {
		where += " AND read = false"
	}

	query := fmt.Sprintf("SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		notificationColumns, where, size, offset)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, recipientID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM notifications WHERE %s", where), recipientID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = false", recipientID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification as read if it belongs to the recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	const query = `UPDATE notifications SET read = true, read_at = $3 WHERE id = $1 AND recipient_id = $2 AND read = false`
	if _, err := r.db.ExecContext(ctx, query, id, recipientID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification for the recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	const query = `UPDATE notifications SET read = true, read_at = $2 WHERE recipient_id = $1 AND read = false`
	if _, err := r.db.ExecContext(ctx, query, recipientID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// MarkEmailSent stamps a notification after the email copy was delivered.
func (r *NotificationRepository) MarkEmailSent(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET email_sent = true, email_sent_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark notification email sent: %w", err)
	}
	return nil
}
