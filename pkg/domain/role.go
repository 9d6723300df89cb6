package domain

import "fmt"

// Role represents a valid account role string.
// This is a domain primitive that enforces validity at parse time.
type Role string

// Supported roles.
const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

var knownRoles = map[Role]struct{}{
	RolePatient: {},
	RoleDoctor:  {},
	RoleAdmin:   {},
}

// ParseRole validates and returns a Role.
// Returns an error if the role is unknown.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown role: %s", s)
	}
	return r, nil
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the role is one of the supported roles.
func (r Role) IsValid() bool {
	_, ok := knownRoles[r]
	return ok
}

// IsNil returns true if the role is empty.
func (r Role) IsNil() bool {
	return r == ""
}
