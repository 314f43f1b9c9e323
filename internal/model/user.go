// Package model defines the data structures used throughout the application.
package model

import "time"

// Roles a user can hold. Role gates the admin-only course management
// routes; it is never self-service (no handler lets a user promote itself).
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Subscription states consumed by the subscriber-only course routes.
const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
)

// Asset is a reference to an object stored on the external media host:
// a stable reference id (the object key) plus a public URL. Used for
// user avatars, course thumbnails, and lecture media.
type Asset struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

// User is one registered identity.
//
// PasswordHash is the bcrypt hash of the user's secret — never the
// plaintext, and never serialized to clients (json:"-"). The reset fields
// are populated only while a password reset is pending: either both are
// set or both are empty, and a successful reset clears both.
//
// Email is stored lowercased; the UNIQUE constraint in the store is the
// single authority on duplicates (two concurrent registrations with the
// same email race on the constraint, not on application code).
type User struct {
	ID                string     `json:"id"`
	FullName          string     `json:"fullName"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Role              string     `json:"role"`
	Avatar            Asset      `json:"avatar"`
	Subscription      string     `json:"subscription"`
	ResetTokenHash    string     `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsSubscribed reports whether the user may access subscriber-only
// content. Admins are always entitled.
func (u *User) IsSubscribed() bool {
	return u.Role == RoleAdmin || u.Subscription == SubscriptionActive
}
