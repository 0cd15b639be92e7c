package entity

import (
	"strings"
	"time"
)

// Role is the access tier of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole accepts only the known tiers.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

const (
	StatusActive   = "active"
	StatusLocked   = "locked"
	StatusDisabled = "disabled"
)

// User is a local account. Empty strings mean "absent" for the optional
// columns (Email for non-provider accounts, ProviderID, Avatar, PasswordHash).
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email,omitempty"`
	ProviderID          string     `json:"provider_id,omitempty"`
	Avatar              string     `json:"avatar,omitempty"`
	Role                Role       `json:"role"`
	PasswordHash        string     `json:"-"`
	Status              string     `json:"status"` // active / locked / disabled
	LoginFailedAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// LockExpired reports a lock whose LockedUntil has passed. Such an account
// is unlocked on its next sign-in.
func (u *User) LockExpired(now time.Time) bool {
	return u.Status == StatusLocked && u.LockedUntil != nil && u.LockedUntil.Before(now)
}

// Clone returns a copy that shares no pointers with u.
func (u *User) Clone() *User {
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
