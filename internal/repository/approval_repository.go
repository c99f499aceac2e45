package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mksu-dev/clearance-api/internal/models"
)

// ApprovalRepository manages the per-department approval ledger.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs an ApprovalRepository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalDetailSelect = `SELECT a.id, a.clearance_request_id, a.department_id, a.status, a.approved_by, a.approval_date,
        a.rejection_reason, a.notes, a.evidence_file, a.created_at, a.updated_at,
        d.name AS department_name, d.code AS department_code, a.approval_order,
        cr.status AS request_status, u.full_name AS student_name, s.registration_number,
        au.full_name AS approver_name
        FROM approvals a
        JOIN departments d ON d.id = a.department_id
        JOIN clearance_requests cr ON cr.id = a.clearance_request_id
        JOIN students s ON s.id = cr.student_id
        JOIN users u ON u.id = s.user_id
        LEFT JOIN users au ON au.id = a.approved_by`

// DecisionInput carries one decision to apply against the ledger.
type DecisionInput struct {
	ApprovalID string
	Action     models.DecisionAction
	ActorID    string
	Reason     string
	Notes      string
}

// DecisionOutcome reports the state produced by an applied decision.
type DecisionOutcome struct {
	Approval         models.ApprovalRecord
	DepartmentName   string
	RequestID        string
	RequestStatus    models.ClearanceStatus
	PendingRemaining int
}

// List returns approval records matching the provided filters.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.RequestID != "" {
		conditions = append(conditions, fmt.Sprintf("a.clearance_request_id = $%d", len(args)+1))
		args = append(args, filter.RequestID)
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DecidedBy != "" {
		conditions = append(conditions, fmt.Sprintf("a.approved_by = $%d", len(args)+1))
		args = append(args, filter.DecidedBy)
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s WHERE %s ORDER BY a.approval_order ASC, d.name ASC LIMIT %d OFFSET %d",
		approvalDetailSelect, where, size, offset)

	var approvals []models.ApprovalDetail
	if err := r.db.SelectContext(ctx, &approvals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list approvals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM approvals a WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count approvals: %w", err)
	}
	return approvals, total, nil
}

// FindByID fetches an approval record by ID.
func (r *ApprovalRepository) FindByID(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	const query = `SELECT id, clearance_request_id, department_id, status, approved_by, approval_date,
        rejection_reason, notes, evidence_file, created_at, updated_at
        FROM approvals WHERE id = $1`
	var approval models.ApprovalRecord
	if err := r.db.GetContext(ctx, &approval, query, id); err != nil {
		return nil, err
	}
	return &approval, nil
}

// FindDetailByID fetches an approval joined with department, request and
// approver.
func (r *ApprovalRepository) FindDetailByID(ctx context.Context, id string) (*models.ApprovalDetail, error) {
	var detail models.ApprovalDetail
	if err := r.db.GetContext(ctx, &detail, approvalDetailSelect+" WHERE a.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

type nextPendingRow struct {
	ID             string `db:"id"`
	DepartmentID   string `db:"department_id"`
	DepartmentName string `db:"department_name"`
}

// NextPendingInOrder returns the first pending record of a request's ledger in
// approval order, or sql.ErrNoRows when none remain.
func (r *ApprovalRepository) NextPendingInOrder(ctx context.Context, requestID string) (*models.ApprovalDetail, error) {
	query := approvalDetailSelect + ` WHERE a.clearance_request_id = $1 AND a.status = 'PENDING'
        ORDER BY a.approval_order ASC, d.name ASC LIMIT 1`
	var detail models.ApprovalDetail
	if err := r.db.GetContext(ctx, &detail, query, requestID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ApplyDecision applies one department decision atomically. It locks the
// approval and its parent request, re-checks every workflow guard under the
// lock, mutates the approval, and derives the request's new status in the same
// transaction. Concurrent decisions on the same ledger serialize on the
// request row.
func (r *ApprovalRepository) ApplyDecision(ctx context.Context, input DecisionInput) (outcome *DecisionOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var approval models.ApprovalRecord
	err = tx.GetContext(ctx, &approval,
		`SELECT id, clearance_request_id, department_id, status, approved_by, approval_date,
         rejection_reason, notes, evidence_file, created_at, updated_at
         FROM approvals WHERE id = $1 FOR UPDATE`, input.ApprovalID)
	if err != nil {
		return nil, err
	}

	var requestStatus models.ClearanceStatus
	err = tx.GetContext(ctx, &requestStatus,
		`SELECT status FROM clearance_requests WHERE id = $1 FOR UPDATE`, approval.RequestID)
	if err != nil {
		return nil, fmt.Errorf("lock clearance request: %w", err)
	}

	if requestStatus.IsTerminal() {
		err = ErrRequestFinalized
		return nil, err
	}
	if !requestStatus.AcceptsDecisions() {
		err = ErrRequestNotSubmitted
		return nil, err
	}
	if approval.Status.Decided() {
		err = ErrAlreadyDecided
		return nil, err
	}

	var next nextPendingRow
	err = tx.GetContext(ctx, &next,
		`SELECT a.id, a.department_id, d.name AS department_name
         FROM approvals a JOIN departments d ON d.id = a.department_id
         WHERE a.clearance_request_id = $1 AND a.status = 'PENDING'
         ORDER BY a.approval_order ASC, d.name ASC LIMIT 1`, approval.RequestID)
	if err != nil {
		return nil, fmt.Errorf("find next pending approval: %w", err)
	}
	if next.ID != approval.ID {
		err = &OutOfOrderError{
			NextApprovalID:     next.ID,
			NextDepartmentID:   next.DepartmentID,
			NextDepartmentName: next.DepartmentName,
		}
		return nil, err
	}

	now := time.Now().UTC()
	approval.ApprovedBy = &input.ActorID
	approval.ApprovalDate = &now
	approval.UpdatedAt = now
	if input.Notes != "" {
		approval.Notes = input.Notes
	}
	if input.Action == models.DecisionReject {
		approval.Status = models.ApprovalStatusRejected
		reason := input.Reason
		approval.RejectionReason = &reason
	} else {
		approval.Status = models.ApprovalStatusApproved
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE approvals SET status = $2, approved_by = $3, approval_date = $4, rejection_reason = $5,
         notes = $6, updated_at = $4 WHERE id = $1`,
		approval.ID, approval.Status, approval.ApprovedBy, now, approval.RejectionReason, approval.Notes)
	if err != nil {
		return nil, fmt.Errorf("update approval: %w", err)
	}

	var pendingRemaining int
	err = tx.GetContext(ctx, &pendingRemaining,
		`SELECT COUNT(*) FROM approvals WHERE clearance_request_id = $1 AND status = 'PENDING'`,
		approval.RequestID)
	if err != nil {
		return nil, fmt.Errorf("count pending approvals: %w", err)
	}

	newStatus := requestStatus
	switch {
	case approval.Status == models.ApprovalStatusRejected:
		newStatus = models.ClearanceStatusRejected
		_, err = tx.ExecContext(ctx,
			`UPDATE clearance_requests SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`,
			approval.RequestID, newStatus, approval.RejectionReason, now)
	case pendingRemaining == 0:
		newStatus = models.ClearanceStatusCompleted
		_, err = tx.ExecContext(ctx,
			`UPDATE clearance_requests SET status = $2, completion_date = $3, updated_at = $3 WHERE id = $1`,
			approval.RequestID, newStatus, now)
	default:
		newStatus = models.ClearanceStatusInProgress
		_, err = tx.ExecContext(ctx,
			`UPDATE clearance_requests SET status = $2, updated_at = $3 WHERE id = $1`,
			approval.RequestID, newStatus, now)
	}
	if err != nil {
		return nil, fmt.Errorf("update clearance request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &DecisionOutcome{
		Approval:         approval,
		DepartmentName:   next.DepartmentName,
		RequestID:        approval.RequestID,
		RequestStatus:    newStatus,
		PendingRemaining: pendingRemaining,
	}, nil
}

// UpdateEvidence attaches an evidence file path to a pending approval record.
func (r *ApprovalRepository) UpdateEvidence(ctx context.Context, id, filePath string) error {
	const query = `UPDATE approvals SET evidence_file = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, filePath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update approval evidence: %w", err)
	}
	if rows, rerr := result.RowsAffected(); rerr == nil && rows == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// ListPendingForDepartment returns the department's actionable queue: pending
// records that are next in order on a request still accepting decisions.
func (r *ApprovalRepository) ListPendingForDepartment(ctx context.Context, departmentID string, page, size int) ([]models.ApprovalDetail, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	where := `a.department_id = $1 AND a.status = 'PENDING'
        AND cr.status NOT IN ('DRAFT', 'COMPLETED', 'REJECTED')
        AND a.id = (
            SELECT a2.id FROM approvals a2 JOIN departments d2 ON d2.id = a2.department_id
            WHERE a2.clearance_request_id = a.clearance_request_id AND a2.status = 'PENDING'
            ORDER BY a2.approval_order ASC, d2.name ASC LIMIT 1
        )`

	query := fmt.Sprintf("%s WHERE %s ORDER BY cr.submission_date ASC NULLS LAST LIMIT %d OFFSET %d",
		approvalDetailSelect, where, size, offset)

	var approvals []models.ApprovalDetail
	if err := r.db.SelectContext(ctx, &approvals, query, departmentID); err != nil {
		return nil, 0, fmt.Errorf("list pending approvals: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM approvals a
        JOIN clearance_requests cr ON cr.id = a.clearance_request_id WHERE %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, departmentID); err != nil {
		return nil, 0, fmt.Errorf("count pending approvals: %w", err)
	}
	return approvals, total, nil
}

type approvalStatsRow struct {
	DepartmentName string   `db:"department_name"`
	Total          int      `db:"total"`
	Pending        int      `db:"pending"`
	Approved       int      `db:"approved"`
	Rejected       int      `db:"rejected"`
	AvgHours       *float64 `db:"avg_hours"`
}

// Statistics aggregates decision throughput per department. When departmentID
// is empty all departments are reported.
func (r *ApprovalRepository) Statistics(ctx context.Context, departmentID string) ([]models.ApprovalStatistics, error) {
	conditions := "1=1"
	args := []interface{}{}
	if departmentID != "" {
		conditions = "a.department_id = $1"
		args = append(args, departmentID)
	}

	query := fmt.Sprintf(`SELECT d.name AS department_name,
        COUNT(a.id) AS total,
        COUNT(a.id) FILTER (WHERE a.status = 'PENDING') AS pending,
        COUNT(a.id) FILTER (WHERE a.status = 'APPROVED') AS approved,
        COUNT(a.id) FILTER (WHERE a.status = 'REJECTED') AS rejected,
        AVG(EXTRACT(EPOCH FROM (a.approval_date - a.created_at)) / 3600.0)
            FILTER (WHERE a.approval_date IS NOT NULL) AS avg_hours
        FROM approvals a JOIN departments d ON d.id = a.department_id
        WHERE %s GROUP BY d.name ORDER BY d.name ASC`, conditions)

	var rows []approvalStatsRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("approval statistics: %w", err)
	}

	stats := make([]models.ApprovalStatistics, 0, len(rows))
	for _, row := range rows {
		entry := models.ApprovalStatistics{
			DepartmentName:       row.DepartmentName,
			Total:                row.Total,
			Pending:              row.Pending,
			Approved:             row.Approved,
			Rejected:             row.Rejected,
			AvgDecisionTimeHours: row.AvgHours,
		}
		if decided := row.Approved + row.Rejected; decided > 0 {
			entry.ApprovalRate = float64(row.Approved) / float64(decided) * 100
		}
		stats = append(stats, entry)
	}
	return stats, nil
}
