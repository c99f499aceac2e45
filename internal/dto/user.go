package dto

import "github.com/mksu-dev/clearance-api/internal/models"

// CreateUserRequest registers a staff or admin account. Department is required
// for DEPARTMENT_STAFF and forbidden otherwise.
type CreateUserRequest struct {
	Email        string          `json:"email" validate:"required,email"`
	Password     string          `json:"password" validate:"required,min=6"`
	FullName     string          `json:"full_name" validate:"required,min=2,max=120"`
	Role         models.UserRole `json:"role" validate:"required,oneof=ADMIN DEPARTMENT_STAFF STUDENT"`
	DepartmentID *string         `json:"department_id"`
}

// UpdateUserRequest edits an account.
type UpdateUserRequest struct {
	Email        string          `json:"email" validate:"required,email"`
	FullName     string          `json:"full_name" validate:"required,min=2,max=120"`
	Role         models.UserRole `json:"role" validate:"required,oneof=ADMIN DEPARTMENT_STAFF STUDENT"`
	DepartmentID *string         `json:"department_id"`
	Active       bool            `json:"active"`
}
