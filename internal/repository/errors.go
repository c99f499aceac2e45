package repository

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by transactional workflow methods. Services map
// these onto the API error taxonomy.
var (
	ErrAlreadyDecided      = errors.New("approval record already decided")
	ErrRequestFinalized    = errors.New("clearance request already finalized")
	ErrRequestNotSubmitted = errors.New("clearance request has not been submitted")
	ErrLedgerExists        = errors.New("approval ledger already exists for request")
)

// OutOfOrderError reports a decision attempted on a record that is not the
// next pending entry in approval order. It carries the correct next record so
// callers can redirect the actor.
type OutOfOrderError struct {
	NextApprovalID     string
	NextDepartmentID   string
	NextDepartmentName string
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("approvals must be processed in order; next department: %s", e.NextDepartmentName)
}
