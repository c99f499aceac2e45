package models

import "time"

// ApprovalStatus is the state of one department's sign-off.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Decided reports whether the record has received its one permanent decision.
func (s ApprovalStatus) Decided() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// DecisionAction is the requested operation on a pending approval record.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

// ApprovalRecord is one department's ledger entry for a clearance request.
// Exactly one record exists per (request, department) pair; once the status
// leaves PENDING the record is immutable.
type ApprovalRecord struct {
	ID              string         `db:"id" json:"id"`
	RequestID       string         `db:"clearance_request_id" json:"clearance_request_id"`
	DepartmentID    string         `db:"department_id" json:"department_id"`
	Status          ApprovalStatus `db:"status" json:"status"`
	ApprovedBy      *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovalDate    *time.Time     `db:"approval_date" json:"approval_date,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Notes           string         `db:"notes" json:"notes,omitempty"`
	EvidenceFile    *string        `db:"evidence_file" json:"evidence_file,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ApprovalDetail joins the record with its department, request and approver.
type ApprovalDetail struct {
	ApprovalRecord
	DepartmentName     string          `db:"department_name" json:"department_name"`
	DepartmentCode     string          `db:"department_code" json:"department_code"`
	ApprovalOrder      int             `db:"approval_order" json:"approval_order"`
	RequestStatus      ClearanceStatus `db:"request_status" json:"request_status"`
	StudentName        string          `db:"student_name" json:"student_name"`
	RegistrationNumber string          `db:"registration_number" json:"registration_number"`
	ApproverName       *string         `db:"approver_name" json:"approver_name,omitempty"`
}

// ApprovalFilter captures listing criteria for approval records.
type ApprovalFilter struct {
	RequestID    string
	DepartmentID string
	Status       *ApprovalStatus
	DecidedBy    string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// BulkDecisionError reports one failed item of a bulk decision.
type BulkDecisionError struct {
	ApprovalID string `json:"approval_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// BulkDecisionReport aggregates the outcome of a best-effort batch. Items
// succeed or fail independently; there is no cross-item rollback.
type BulkDecisionReport struct {
	SucceededCount int                 `json:"success_count"`
	FailedCount    int                 `json:"failed_count"`
	Errors         []BulkDecisionError `json:"errors"`
}

// ApprovalStatistics aggregates decision throughput for one or all departments.
type ApprovalStatistics struct {
	DepartmentName       string   `json:"department"`
	Total                int      `json:"total_approvals"`
	Pending              int      `json:"pending_count"`
	Approved             int      `json:"approved_count"`
	Rejected             int      `json:"rejected_count"`
	ApprovalRate         float64  `json:"approval_rate"`
	AvgDecisionTimeHours *float64 `json:"average_approval_time_hours,omitempty"`
}
