package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountStatus(t *testing.T) {
	a := &Account{Active: true}
	assert.Equal(t, StatusUnverified, a.Status())

	a.EmailVerified = true
	assert.Equal(t, StatusVerified, a.Status())

	a.Active = false
	assert.Equal(t, StatusDeleted, a.Status())
}

func TestChangedPasswordAfter(t *testing.T) {
	iat := time.Unix(1_700_000_000, 0)
	a := &Account{}
	assert.False(t, a.ChangedPasswordAfter(iat))

	same := iat.Add(500 * time.Millisecond)
	a.PasswordChangedAt = &same
	assert.False(t, a.ChangedPasswordAfter(iat), "same second must not invalidate")

	later := iat.Add(2 * time.Second)
	a.PasswordChangedAt = &later
	assert.True(t, a.ChangedPasswordAfter(iat))
}

func TestPublicHidesCredentials(t *testing.T) {
	a := &Account{Name: "Robert", Email: "r@x.io", ImageURL: "img", Role: RoleDriver, PasswordHash: "secret"}
	assert.Equal(t, PublicAccount{Name: "Robert", Email: "r@x.io", Image: "img", Role: RoleDriver}, a.Public())
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "toe@example.com", NormalizeEmail("  Toe@Example.COM "))
}
