package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionCreate  = "CREATE"
	AuditActionUpdate  = "UPDATE"
	AuditActionDelete  = "DELETE"
	AuditActionApprove = "APPROVE"
	AuditActionReject  = "REJECT"
	AuditActionSubmit  = "SUBMIT"
	AuditActionLogin   = "LOGIN"
	AuditActionLogout  = "LOGOUT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	ActorID     *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	Entity      string    `db:"entity" json:"entity"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Description string    `db:"description" json:"description"`
	Changes     []byte    `db:"changes" json:"changes,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter captures listing criteria for the audit trail.
type AuditFilter struct {
	ActorID  string
	Action   string
	Entity   string
	Page     int
	PageSize int
}

// AuditIntent is the fire-and-forget payload recorded by the workflow.
type AuditIntent struct {
	ActorID     *string                `json:"actor_id,omitempty"`
	Action      string                 `json:"action"`
	Entity      string                 `json:"entity"`
	EntityID    string                 `json:"entity_id"`
	Description string                 `json:"description"`
	Changes     map[string]interface{} `json:"changes,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
}
