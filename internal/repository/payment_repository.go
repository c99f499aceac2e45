package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mksu-dev/clearance-api/internal/models"
)

// PaymentRepository manages clearance-fee payment records.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = "id, student_id, amount, method, reference, verified, verified_by, verified_at, created_at, updated_at"

// FindByStudent returns the student's payment record.
func (r *PaymentRepository) FindByStudent(ctx context.Context, studentID string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE student_id = $1 ORDER BY created_at DESC LIMIT 1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, studentID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// IsVerified reports whether the student has a verified payment on file.
func (r *PaymentRepository) IsVerified(ctx context.Context, studentID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM payments WHERE student_id = $1 AND verified = true LIMIT 1", studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check payment verification: %w", err)
	}
	return true, nil
}

// Create records a payment awaiting verification.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, student_id, amount, method, reference, verified, verified_by, verified_at, created_at, updated_at)
        VALUES (:id, :student_id, :amount, :method, :reference, :verified, :verified_by, :verified_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// Verify marks a payment as verified by the given user.
func (r *PaymentRepository) Verify(ctx context.Context, id, verifiedBy string) error {
	now := time.Now().UTC()
	const query = `UPDATE payments SET verified = true, verified_by = $2, verified_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, verifiedBy, now); err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}
	return nil
}

// FindByID fetches a payment by ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}
