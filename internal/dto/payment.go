package dto

import "github.com/shopspring/decimal"

// RecordPaymentRequest records a clearance fee payment awaiting verification.
type RecordPaymentRequest struct {
	StudentID string          `json:"student_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Method    string          `json:"method" validate:"required,oneof=BANK_TRANSFER MOBILE_MONEY CASH"`
	Reference string          `json:"reference" validate:"required,max=64"`
}
