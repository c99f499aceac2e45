package models

import "time"

// EligibilityStatus is the academic standing gate for creating a clearance request.
type EligibilityStatus string

const (
	EligibilityEligible   EligibilityStatus = "ELIGIBLE"
	EligibilityIneligible EligibilityStatus = "INELIGIBLE"
	EligibilityPending    EligibilityStatus = "PENDING"
)

// Student holds the graduation candidate's academic profile.
type Student struct {
	ID                 string            `db:"id" json:"id"`
	UserID             string            `db:"user_id" json:"user_id"`
	RegistrationNumber string            `db:"registration_number" json:"registration_number"`
	Faculty            string            `db:"faculty" json:"faculty"`
	Program            string            `db:"program" json:"program"`
	AdmissionYear      *int              `db:"admission_year" json:"admission_year,omitempty"`
	GraduationYear     int               `db:"graduation_year" json:"graduation_year"`
	EligibilityStatus  EligibilityStatus `db:"eligibility_status" json:"eligibility_status"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the student with the owning user account.
type StudentDetail struct {
	Student
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search         string
	Faculty        string
	GraduationYear *int
	Eligibility    *EligibilityStatus
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
