package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mksu-dev/clearance-api/internal/models"
)

// ClearanceRepository manages clearance requests and their frozen approval
// ledgers.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs a ClearanceRepository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

const clearanceColumns = "id, student_id, status, submission_date, completion_date, rejection_reason, created_at, updated_at"

const clearanceDetailSelect = `SELECT cr.id, cr.student_id, cr.status, cr.submission_date, cr.completion_date, cr.rejection_reason,
        cr.created_at, cr.updated_at, u.full_name AS student_name, s.registration_number, s.faculty, s.program
        FROM clearance_requests cr
        JOIN students s ON s.id = cr.student_id
        JOIN users u ON u.id = s.user_id`

// List returns clearance requests matching the provided filters.
func (r *ClearanceRepository) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("cr.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("cr.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Faculty != "" {
		conditions = append(conditions, fmt.Sprintf("s.faculty = $%d", len(args)+1))
		args = append(args, filter.Faculty)
	}
	if filter.GraduationYear != nil {
		conditions = append(conditions, fmt.Sprintf("s.graduation_year = $%d", len(args)+1))
		args = append(args, *filter.GraduationYear)
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at":      "cr.created_at",
		"submission_date": "cr.submission_date",
		"status":          "cr.status",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "cr.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d", clearanceDetailSelect, where, column, order, size, offset)

	var requests []models.ClearanceDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list clearance requests: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM clearance_requests cr
        JOIN students s ON s.id = cr.student_id
        JOIN users u ON u.id = s.user_id WHERE %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clearance requests: %w", err)
	}
	return requests, total, nil
}

// FindByID fetches a clearance request by ID.
func (r *ClearanceRepository) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM clearance_requests WHERE id = $1", clearanceColumns)
	var request models.ClearanceRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID fetches a request joined with the owning student.
func (r *ClearanceRepository) FindDetailByID(ctx context.Context, id string) (*models.ClearanceDetail, error) {
	var detail models.ClearanceDetail
	if err := r.db.GetContext(ctx, &detail, clearanceDetailSelect+" WHERE cr.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByStudent returns the student's non-terminal request, if any.
func (r *ClearanceRepository) FindActiveByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearance_requests
        WHERE student_id = $1 AND status NOT IN ('COMPLETED', 'REJECTED')
        ORDER BY created_at DESC LIMIT 1`, clearanceColumns)
	var request models.ClearanceRequest
	if err := r.db.GetContext(ctx, &request, query, studentID); err != nil {
		return nil, err
	}
	return &request, nil
}

// CreateWithLedger inserts the request and one PENDING approval record per
// snapshot department in a single transaction. The approval_order stored on
// each record is the department's order at creation time; later registry edits
// never touch an existing ledger.
func (r *ClearanceRepository) CreateWithLedger(ctx context.Context, request *models.ClearanceRequest, departments []models.Department) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing int
	err = tx.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM clearance_requests WHERE student_id = $1 AND status NOT IN ('COMPLETED', 'REJECTED')`,
		request.StudentID)
	if err != nil {
		return fmt.Errorf("check existing request: %w", err)
	}
	if existing > 0 {
		err = ErrLedgerExists
		return err
	}

	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO clearance_requests (id, student_id, status, submission_date, completion_date, rejection_reason, created_at, updated_at)
         VALUES (:id, :student_id, :status, :submission_date, :completion_date, :rejection_reason, :created_at, :updated_at)`,
		request)
	if err != nil {
		return fmt.Errorf("insert clearance request: %w", err)
	}

	for _, department := range departments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO approvals (id, clearance_request_id, department_id, approval_order, status, notes, created_at, updated_at)
             VALUES ($1, $2, $3, $4, $5, '', $6, $6)`,
			uuid.NewString(), request.ID, department.ID, department.ApprovalOrder, models.ApprovalStatusPending, now)
		if err != nil {
			return fmt.Errorf("insert approval ledger entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Submit moves a draft request into the workflow and stamps the submission
// date.
func (r *ClearanceRepository) Submit(ctx context.Context, id string, status models.ClearanceStatus, submissionDate time.Time) error {
	const query = `UPDATE clearance_requests SET status = $2, submission_date = $3, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, submissionDate)
	if err != nil {
		return fmt.Errorf("submit clearance request: %w", err)
	}
	if rows, rerr := result.RowsAffected(); rerr == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Summarize counts the request's ledger records by status.
func (r *ClearanceRepository) Summarize(ctx context.Context, requestID string) (*models.ApprovalSummary, error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'APPROVED') AS approved,
        COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected,
        COUNT(*) FILTER (WHERE status = 'PENDING') AS pending
        FROM approvals WHERE clearance_request_id = $1`
	var summary models.ApprovalSummary
	if err := r.db.GetContext(ctx, &summary, query, requestID); err != nil {
		return nil, fmt.Errorf("summarize approvals: %w", err)
	}
	return &summary, nil
}

type progressRow struct {
	ApprovalID      string     `db:"approval_id"`
	ApprovalOrder   int        `db:"approval_order"`
	DepartmentName  string     `db:"department_name"`
	DepartmentCode  string     `db:"department_code"`
	Status          string     `db:"status"`
	ApprovedBy      *string    `db:"approved_by"`
	ApprovalDate    *time.Time `db:"approval_date"`
	RejectionReason *string    `db:"rejection_reason"`
	Notes           string     `db:"notes"`
}

// ListProgress returns the per-department progress lines in approval order.
func (r *ClearanceRepository) ListProgress(ctx context.Context, requestID string) ([]models.ProgressEntry, error) {
	const query = `SELECT a.id AS approval_id, a.approval_order, d.name AS department_name, d.code AS department_code,
        a.status, a.approved_by, a.approval_date, a.rejection_reason, a.notes
        FROM approvals a JOIN departments d ON d.id = a.department_id
        WHERE a.clearance_request_id = $1
        ORDER BY a.approval_order ASC, d.name ASC`
	var rows []progressRow
	if err := r.db.SelectContext(ctx, &rows, query, requestID); err != nil {
		return nil, fmt.Errorf("list approval progress: %w", err)
	}
	entries := make([]models.ProgressEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.ProgressEntry{
			ApprovalID:      row.ApprovalID,
			Order:           row.ApprovalOrder,
			DepartmentName:  row.DepartmentName,
			DepartmentCode:  row.DepartmentCode,
			Status:          row.Status,
			ApprovedBy:      row.ApprovedBy,
			ApprovalDate:    row.ApprovalDate,
			RejectionReason: row.RejectionReason,
			Notes:           row.Notes,
		})
	}
	return entries, nil
}

type clearanceStatsRow struct {
	Total      int `db:"total"`
	Draft      int `db:"draft"`
	Submitted  int `db:"submitted"`
	InProgress int `db:"in_progress"`
	Completed  int `db:"completed"`
	Rejected   int `db:"rejected"`
}

// Statistics aggregates request counts by status across the whole system.
func (r *ClearanceRepository) Statistics(ctx context.Context) (*models.ClearanceStatistics, error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'DRAFT') AS draft,
        COUNT(*) FILTER (WHERE status IN ('SUBMITTED', 'PENDING')) AS submitted,
        COUNT(*) FILTER (WHERE status = 'IN_PROGRESS') AS in_progress,
        COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
        COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected
        FROM clearance_requests`
	var row clearanceStatsRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("clearance statistics: %w", err)
	}
	stats := &models.ClearanceStatistics{
		TotalRequests: row.Total,
		Draft:         row.Draft,
		Submitted:     row.Submitted,
		InProgress:    row.InProgress,
		Completed:     row.Completed,
		Rejected:      row.Rejected,
	}
	if row.Total > 0 {
		stats.CompletionRate = float64(row.Completed) / float64(row.Total) * 100
	}
	return stats, nil
}
