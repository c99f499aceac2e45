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

// StudentRepository manages persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentSelect = `SELECT s.id, s.user_id, s.registration_number, s.faculty, s.program, s.admission_year, s.graduation_year,
        s.eligibility_status, s.created_at, s.updated_at, u.full_name, u.email
        FROM students s JOIN users u ON u.id = s.user_id`

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Faculty != "" {
		conditions = append(conditions, fmt.Sprintf("s.faculty = $%d", len(args)+1))
		args = append(args, filter.Faculty)
	}
	if filter.GraduationYear != nil {
		conditions = append(conditions, fmt.Sprintf("s.graduation_year = $%d", len(args)+1))
		args = append(args, *filter.GraduationYear)
	}
	if filter.Eligibility != nil {
		conditions = append(conditions, fmt.Sprintf("s.eligibility_status = $%d", len(args)+1))
		args = append(args, *filter.Eligibility)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(s.registration_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"registration_number": "s.registration_number",
		"full_name":           "u.full_name",
		"graduation_year":     "s.graduation_year",
		"created_at":          "s.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
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

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d", studentSelect, where, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students s JOIN users u ON u.id = s.user_id WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, studentSelect+" WHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByUserID fetches the student profile owned by a user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, studentSelect+" WHERE s.user_id = $1", userID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByRegistration checks registration number uniqueness, optionally excluding an ID.
func (r *StudentRepository) ExistsByRegistration(ctx context.Context, registration string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE registration_number = $1"
	args := []interface{}{registration}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check registration number: %w", err)
	}
	return true, nil
}

// Create inserts a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, user_id, registration_number, faculty, program, admission_year, graduation_year, eligibility_status, created_at, updated_at)
        VALUES (:id, :user_id, :registration_number, :faculty, :program, :admission_year, :graduation_year, :eligibility_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student profile.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET registration_number = :registration_number, faculty = :faculty, program = :program,
        admission_year = :admission_year, graduation_year = :graduation_year, eligibility_status = :eligibility_status,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}
