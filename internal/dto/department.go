package dto

import "github.com/mksu-dev/clearance-api/internal/models"

// CreateDepartmentRequest defines the payload for registering a department.
type CreateDepartmentRequest struct {
	Name          string                `json:"name" validate:"required,min=2,max=120"`
	Code          string                `json:"code" validate:"required,alphanum,min=2,max=12"`
	Type          models.DepartmentType `json:"department_type" validate:"required,oneof=FINANCE FACULTY LIBRARY MESS HOSTEL WORKSHOP SPORTS OTHER"`
	HeadEmail     string                `json:"head_email" validate:"required,email"`
	Description   string                `json:"description" validate:"max=500"`
	ApprovalOrder int                   `json:"approval_order" validate:"required,min=1"`
}

// UpdateDepartmentRequest defines the payload for editing a department.
// Changes affect future ledgers only.
type UpdateDepartmentRequest struct {
	Name          string                `json:"name" validate:"required,min=2,max=120"`
	Code          string                `json:"code" validate:"required,alphanum,min=2,max=12"`
	Type          models.DepartmentType `json:"department_type" validate:"required,oneof=FINANCE FACULTY LIBRARY MESS HOSTEL WORKSHOP SPORTS OTHER"`
	HeadEmail     string                `json:"head_email" validate:"required,email"`
	Description   string                `json:"description" validate:"max=500"`
	Active        bool                  `json:"active"`
	ApprovalOrder int                   `json:"approval_order" validate:"required,min=1"`
}
