package models

import "time"

// UserRole represents the closed set of roles for the RBAC system.
type UserRole string

const (
	RoleAdmin           UserRole = "ADMIN"
	RoleDepartmentStaff UserRole = "DEPARTMENT_STAFF"
	RoleStudent         UserRole = "STUDENT"
)

// User represents an application user stored in the users table.
// DepartmentID is only set for DEPARTMENT_STAFF accounts.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	DepartmentID *string    `db:"department_id" json:"department_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role         *UserRole
	DepartmentID string
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CanDecideFor reports whether a user may decide an approval record belonging
// to the given department. Admins may decide for any department; department
// staff only for their own. This is the single authorization predicate for
// clearance decisions.
func CanDecideFor(role UserRole, userDepartmentID *string, departmentID string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDepartmentStaff:
		return userDepartmentID != nil && *userDepartmentID == departmentID
	default:
		return false
	}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
