package dto

import "github.com/mksu-dev/clearance-api/internal/models"

// CreateStudentRequest registers a student profile together with its user
// account.
type CreateStudentRequest struct {
	Email              string `json:"email" validate:"required,email"`
	Password           string `json:"password" validate:"required,min=6"`
	FullName           string `json:"full_name" validate:"required,min=2,max=120"`
	RegistrationNumber string `json:"registration_number" validate:"required,min=4,max=32"`
	Faculty            string `json:"faculty" validate:"required,max=120"`
	Program            string `json:"program" validate:"required,max=120"`
	AdmissionYear      int    `json:"admission_year" validate:"required,min=1990"`
	GraduationYear     int    `json:"graduation_year" validate:"required,min=1990"`
}

// UpdateStudentRequest edits a student profile.
type UpdateStudentRequest struct {
	RegistrationNumber string `json:"registration_number" validate:"required,min=4,max=32"`
	Faculty            string `json:"faculty" validate:"required,max=120"`
	Program            string `json:"program" validate:"required,max=120"`
	AdmissionYear      int    `json:"admission_year" validate:"required,min=1990"`
	GraduationYear     int    `json:"graduation_year" validate:"required,min=1990"`
}

// UpdateEligibilityRequest sets a student's graduation eligibility.
type UpdateEligibilityRequest struct {
	Status models.EligibilityStatus `json:"eligibility_status" validate:"required,oneof=ELIGIBLE INELIGIBLE PENDING"`
}
