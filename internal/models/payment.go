package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod identifies how the clearance fee was settled.
type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCash         PaymentMethod = "CASH"
)

// Payment records a clearance-fee payment for a student. Gateway specifics
// live outside this service; the workflow only consumes the verified flag.
type Payment struct {
	ID         string          `db:"id" json:"id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     PaymentMethod   `db:"method" json:"method"`
	Reference  string          `db:"reference" json:"reference"`
	Verified   bool            `db:"verified" json:"verified"`
	VerifiedBy *string         `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt *time.Time      `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
