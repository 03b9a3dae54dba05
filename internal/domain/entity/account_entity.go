package entity

import (
	"strings"
	"time"
)

// Account is the aggregate root for the account domain.
// PasswordHash holds a bcrypt digest and is never serialized.
type Account struct {
	ID           string
	Name         string
	Email        string
	ImageURL     string
	Role         Role
	PasswordHash string `json:"-"`

	PasswordChangedAt *time.Time
	EmailVerified     bool
	Active            bool

	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time

	// ExpiresAt is armed at signup and cleared on verification. Unverified
	// accounts past this instant are invisible and get reaped.
	ExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status is the lifecycle state derived from the verification and soft-delete flags.
type Status string

const (
	StatusUnverified Status = "Unverified"
	StatusVerified   Status = "Verified"
	StatusDeleted    Status = "Deleted"
)

func (a *Account) Status() Status {
	switch {
	case !a.Active:
		return StatusDeleted
	case a.EmailVerified:
		return StatusVerified
	default:
		return StatusUnverified
	}
}

// PublicAccount is the outward projection of an account.
type PublicAccount struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
	Role  Role   `json:"role"`
}

func (a *Account) Public() PublicAccount {
	return PublicAccount{Name: a.Name, Email: a.Email, Image: a.ImageURL, Role: a.Role}
}

// ChangedPasswordAfter reports whether the password was replaced after a token
// issued at iat. Comparison is at second precision, matching JWT iat.
func (a *Account) ChangedPasswordAfter(iat time.Time) bool {
	if a.PasswordChangedAt == nil {
		return false
	}
	return a.PasswordChangedAt.Unix() > iat.Unix()
}

// ClearReset drops any pending password reset.
func (a *Account) ClearReset() {
	a.ResetTokenHash = nil
	a.ResetTokenExpiresAt = nil
}

// NormalizeEmail trims and lower-cases an address; emails are compared in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
