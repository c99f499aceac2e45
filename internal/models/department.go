package models

import "time"

// DepartmentType categorizes clearance departments.
type DepartmentType string

const (
	DepartmentTypeFinance  DepartmentType = "FINANCE"
	DepartmentTypeFaculty  DepartmentType = "FACULTY"
	DepartmentTypeLibrary  DepartmentType = "LIBRARY"
	DepartmentTypeMess     DepartmentType = "MESS"
	DepartmentTypeHostel   DepartmentType = "HOSTEL"
	DepartmentTypeWorkshop DepartmentType = "WORKSHOP"
	DepartmentTypeSports   DepartmentType = "SPORTS"
	DepartmentTypeOther    DepartmentType = "OTHER"
)

// Department is one sign-off station in the clearance sequence.
// ApprovalOrder defines its rank; ties are broken by name so the ordering is
// always deterministic.
type Department struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Code          string         `db:"code" json:"code"`
	Type          DepartmentType `db:"department_type" json:"department_type"`
	HeadEmail     string         `db:"head_email" json:"head_email"`
	Description   string         `db:"description" json:"description,omitempty"`
	Active        bool           `db:"active" json:"active"`
	ApprovalOrder int            `db:"approval_order" json:"approval_order"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// DepartmentFilter captures listing criteria for departments.
type DepartmentFilter struct {
	Active   *bool
	Type     *DepartmentType
	Search   string
	Page     int
	PageSize int
}
