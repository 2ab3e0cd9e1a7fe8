package dto

import "github.com/openedu-labs/qfeed-api/internal/models"

// Requester identifies the authenticated caller of a grading endpoint,
// extracted from the bearer token by the auth middleware.
type Requester struct {
	ID   uint   `json:"id"`
	Role string `json:"role"`
}

// IsStaff reports whether the requester may act on submissions owned by
// other students.
func (r Requester) IsStaff() bool {
	return r.Role == models.RoleTeacher || r.Role == models.RoleAdmin
}
