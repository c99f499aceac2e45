package dto

import "github.com/mksu-dev/clearance-api/internal/models"

// DecisionRequest carries one approve/reject action on an approval record.
// Reason is mandatory for rejections and must carry content.
type DecisionRequest struct {
	Action models.DecisionAction `json:"action" validate:"required,oneof=approve reject"`
	Reason string                `json:"reason" validate:"max=500"`
	Notes  string                `json:"notes" validate:"max=500"`
}

// BulkDecisionItem is one entry of a bulk decision batch.
type BulkDecisionItem struct {
	ApprovalID string                `json:"approval_id" validate:"required"`
	Action     models.DecisionAction `json:"action" validate:"required,oneof=approve reject"`
	Reason     string                `json:"reason" validate:"max=500"`
	Notes      string                `json:"notes" validate:"max=500"`
}

// BulkDecisionRequest applies decisions best-effort; items succeed or fail
// independently.
type BulkDecisionRequest struct {
	Items []BulkDecisionItem `json:"items" validate:"required,min=1,max=50,dive"`
}
