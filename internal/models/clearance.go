package models

import "time"

// ClearanceStatus is the lifecycle state of a clearance request.
type ClearanceStatus string

const (
	ClearanceStatusDraft      ClearanceStatus = "DRAFT"
	ClearanceStatusSubmitted  ClearanceStatus = "SUBMITTED"
	ClearanceStatusPending    ClearanceStatus = "PENDING"
	ClearanceStatusInProgress ClearanceStatus = "IN_PROGRESS"
	ClearanceStatusCompleted  ClearanceStatus = "COMPLETED"
	ClearanceStatusRejected   ClearanceStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s ClearanceStatus) IsTerminal() bool {
	return s == ClearanceStatusCompleted || s == ClearanceStatusRejected
}

// AcceptsDecisions reports whether department decisions may be applied.
// PENDING is a legacy initial status equivalent to SUBMITTED.
func (s ClearanceStatus) AcceptsDecisions() bool {
	switch s {
	case ClearanceStatusSubmitted, ClearanceStatusPending, ClearanceStatusInProgress:
		return true
	default:
		return false
	}
}

// clearanceTransitions is the closed transition table for the state machine.
var clearanceTransitions = map[ClearanceStatus][]ClearanceStatus{
	ClearanceStatusDraft:      {ClearanceStatusSubmitted},
	ClearanceStatusSubmitted:  {ClearanceStatusInProgress, ClearanceStatusCompleted, ClearanceStatusRejected},
	ClearanceStatusPending:    {ClearanceStatusInProgress, ClearanceStatusCompleted, ClearanceStatusRejected},
	ClearanceStatusInProgress: {ClearanceStatusCompleted, ClearanceStatusRejected},
	ClearanceStatusCompleted:  {},
	ClearanceStatusRejected:   {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to ClearanceStatus) bool {
	for _, allowed := range clearanceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ClearanceRequest is a student's application to be cleared for graduation.
type ClearanceRequest struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	Status          ClearanceStatus `db:"status" json:"status"`
	SubmissionDate  *time.Time      `db:"submission_date" json:"submission_date,omitempty"`
	CompletionDate  *time.Time      `db:"completion_date" json:"completion_date,omitempty"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ClearanceDetail joins the request with the owning student.
type ClearanceDetail struct {
	ClearanceRequest
	StudentName        string `db:"student_name" json:"student_name"`
	RegistrationNumber string `db:"registration_number" json:"registration_number"`
	Faculty            string `db:"faculty" json:"faculty"`
	Program            string `db:"program" json:"program"`
}

// ApprovalSummary counts the request's ledger records by status.
type ApprovalSummary struct {
	Total    int `db:"total" json:"total"`
	Approved int `db:"approved" json:"approved"`
	Rejected int `db:"rejected" json:"rejected"`
	Pending  int `db:"pending" json:"pending"`
}

// Decided returns the number of records that have received a decision.
func (s ApprovalSummary) Decided() int {
	return s.Approved + s.Rejected
}

// ProgressEntry is one department line of the approval progress view.
type ProgressEntry struct {
	ApprovalID      string     `json:"approval_id"`
	Order           int        `json:"order"`
	DepartmentName  string     `json:"department"`
	DepartmentCode  string     `json:"department_code"`
	Status          string     `json:"status"`
	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovalDate    *time.Time `json:"approval_date,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// ClearanceProgress is the derived progress view for one request.
// CompletionPercentage is display-only: it counts decided records against the
// live active-department total, never against the frozen ledger.
type ClearanceProgress struct {
	RequestID            string          `json:"clearance_request_id"`
	OverallStatus        ClearanceStatus `json:"overall_status"`
	CompletionPercentage int             `json:"completion_percentage"`
	TotalDepartments     int             `json:"total_departments"`
	ApprovedCount        int             `json:"approved_count"`
	PendingCount         int             `json:"pending_count"`
	RejectedCount        int             `json:"rejected_count"`
	Entries              []ProgressEntry `json:"progress"`
}

// ClearanceStatistics aggregates request counts by status.
type ClearanceStatistics struct {
	TotalRequests  int     `json:"total_requests"`
	Draft          int     `json:"draft"`
	Submitted      int     `json:"submitted"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	Rejected       int     `json:"rejected"`
	CompletionRate float64 `json:"completion_rate"`
}

// ClearanceFilter captures listing criteria for clearance requests.
type ClearanceFilter struct {
	StudentID      string
	Status         *ClearanceStatus
	Faculty        string
	GraduationYear *int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
