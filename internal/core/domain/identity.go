package domain

import "time"

// User mirrors the persisted operator account in the users table.
type User struct {
	ID                  string
	Username            string
	PasswordHash        string
	Salt                string
	Role                Role
	IsActive            bool
	CreatedAt           time.Time
	LastLogin           *time.Time
	FailedLoginAttempts int
	LockoutUntil        *time.Time
}

// IsLockedAt reports whether the account lockout window is still open at the supplied moment.
func (u User) IsLockedAt(at time.Time) bool {
	if u.LockoutUntil == nil {
		return false
	}
	return at.Before(*u.LockoutUntil)
}

// ClearLockout resets failure tracking after a successful login or an elapsed lockout.
func (u *User) ClearLockout() {
	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
}

// PasswordContext carries user attributes that weak passwords tend to reuse.
type PasswordContext struct {
	Username string
}
