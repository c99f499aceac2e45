package models

import "time"

// NotificationType constants mirror the workflow events that produce intents.
const (
	NotificationClearanceSubmitted = "CLEARANCE_SUBMITTED"
	NotificationClearanceApproved  = "CLEARANCE_APPROVED"
	NotificationClearanceRejected  = "CLEARANCE_REJECTED"
	NotificationApprovalAction     = "APPROVAL_ACTION"
	NotificationApprovalPending    = "APPROVAL_PENDING"
	NotificationPaymentVerified    = "PAYMENT_VERIFIED"
	NotificationGeneral            = "GENERAL"
)

// Notification is a persisted in-app notification for a user.
type Notification struct {
	ID          string     `db:"id" json:"id"`
	RecipientID string     `db:"recipient_id" json:"recipient_id"`
	Type        string     `db:"notification_type" json:"notification_type"`
	Title       string     `db:"title" json:"title"`
	Message     string     `db:"message" json:"message"`
	ClearanceID *string    `db:"clearance_request_id" json:"clearance_request_id,omitempty"`
	ApprovalID  *string    `db:"approval_id" json:"approval_id,omitempty"`
	Read        bool       `db:"read" json:"read"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	EmailSent   bool       `db:"email_sent" json:"email_sent"`
	EmailSentAt *time.Time `db:"email_sent_at" json:"email_sent_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// NotificationIntent is the fire-and-forget payload emitted by the workflow.
// Delivery (row insert, optional email) happens asynchronously; failures are
// logged and never affect the emitting transaction.
type NotificationIntent struct {
	RecipientID string  `json:"recipient_id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	ClearanceID *string `json:"clearance_request_id,omitempty"`
	ApprovalID  *string `json:"approval_id,omitempty"`
}
