package models

import "time"

// UserRole represents the closed set of roles known to the registry.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleCitizen UserRole = "CITIZEN"
)

// Valid reports whether the role belongs to the closed set.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleCitizen
}

// User represents a registered citizen or administrator.
//
// SessionVersion is the sole revocation mechanism for refresh tokens: every
// refresh token embeds the value current at issuance and stays usable only
// while the stored value still matches. It starts at 0 and only ever grows.
type User struct {
	ID             string     `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	NationalID     string     `db:"national_id" json:"national_id,omitempty"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FullName       string     `db:"full_name" json:"full_name"`
	Role           UserRole   `db:"role" json:"role"`
	SessionVersion int64      `db:"session_version" json:"-"`
	Active         bool       `db:"active" json:"active"`
	LastLogin      *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
