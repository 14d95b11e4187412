// Package model defines the data structures used throughout the application.
package model

import "time"

// Roles a user may hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered account.
//
// Email is the identity key: it is unique, it is the subject of every token
// we issue, and it is the key under which the user's Principal is cached.
// PasswordHash always holds a bcrypt hash once persisted and is never
// serialised to JSON.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Avatar       *string   `json:"avatar"    db:"avatar"` // nil until an avatar is uploaded
	Confirmed    bool      `json:"confirmed" db:"confirmed"`
	Role         string    `json:"role"      db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Principal is the authenticated view of a user for the duration of one
// request. It is also the value stored in the identity cache, so it only
// carries fields that are safe to keep outside the database.
type Principal struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Avatar    *string `json:"avatar"`
	Confirmed bool    `json:"confirmed"`
	Role      string  `json:"role"`
}

// Principal projects the user onto its cacheable principal.
func (u *User) Principal() *Principal {
	return &Principal{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Confirmed: u.Confirmed,
		Role:      u.Role,
	}
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
