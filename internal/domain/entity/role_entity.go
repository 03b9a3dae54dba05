package entity

import "strings"

// Role gates authorization-sensitive operations. It is an attribute of an
// account, not part of its verification lifecycle.
type Role string

const (
	RoleDriver Role = "Driver"
	RoleAdmin  Role = "Admin"
)

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "driver":
		return RoleDriver, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

func (r Role) String() string { return string(r) }
