package models

// Roles an authorized user can hold. The main administrator from
// configuration is admin without a users-table row.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// AuthorizedUser is a row in the users table.
type AuthorizedUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	AddedAt  string `json:"added_at,omitempty"`
}

// Admin reports whether the entry carries the admin role.
func (u AuthorizedUser) Admin() bool {
	return u.Role == RoleAdmin
}

// AccessDecision labels one access check outcome for the audit trail.
type AccessDecision string

const (
	AccessGrantedAdmin AccessDecision = "GRANTED_ADMIN"
	AccessGranted      AccessDecision = "GRANTED"
	AccessDenied       AccessDecision = "DENIED"
)
