package dto

// CreateClearanceRequest opens a clearance request. StudentID is only honored
// for admins; students always act on their own profile.
type CreateClearanceRequest struct {
	StudentID string `json:"student_id"`
}
