package domain

import (
	"github.com/google/uuid"

	dErrors "medigate/pkg/domain-errors"
)

// Typed IDs keep user and doctor identifiers from being mixed up at call
// sites. They are UUIDs underneath and serialize as their string form.
type (
	UserID   uuid.UUID
	DoctorID uuid.UUID
)

// ParseUserID validates and returns a UserID.
// Rejects empty strings, malformed UUIDs, and the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseID(s, "user id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseDoctorID validates and returns a DoctorID.
// Rejects empty strings, malformed UUIDs, and the nil UUID.
func ParseDoctorID(s string) (DoctorID, error) {
	u, err := parseID(s, "doctor id")
	if err != nil {
		return DoctorID{}, err
	}
	return DoctorID(u), nil
}

func parseID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s: %s", kind, s)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return u, nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

// IsNil returns true for the zero UserID.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id DoctorID) String() string { return uuid.UUID(id).String() }

// IsNil returns true for the zero DoctorID.
func (id DoctorID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id DoctorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *DoctorID) UnmarshalText(b []byte) error {
	parsed, err := ParseDoctorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
