// Package identity holds the authenticated-user model shared by the session
// state machine, the credential store, and the gate controller. The view layer
// only ever sees value-copy snapshots of these types.
package identity

import (
	"medigate/pkg/domain"

	dErrors "medigate/pkg/domain-errors"
)

// Identity captures the authenticated user's profile and role. It is created
// on successful authentication, replaced wholesale on profile edits, and
// destroyed on logout.
type Identity struct {
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username"`
	FullName  string        `json:"full_name"`
	Email     string        `json:"email"`
	Role      domain.Role   `json:"role"`
	AvatarURL string        `json:"avatar,omitempty"`
}

// Validate checks the fields that downstream components rely on.
func (i Identity) Validate() error {
	if i.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
	}
	if !i.Role.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "identity role %q is not valid", i.Role)
	}
	return nil
}

// Patch carries partial profile edits. Nil fields are left untouched;
// ID and Role are immutable for the lifetime of a session.
type Patch struct {
	Username  *string `json:"username,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	AvatarURL *string `json:"avatar,omitempty"`
}

// Apply merges the patch into a copy of the identity and returns it.
func (p Patch) Apply(base Identity) Identity {
	if p.Username != nil {
		base.Username = *p.Username
	}
	if p.FullName != nil {
		base.FullName = *p.FullName
	}
	if p.Email != nil {
		base.Email = *p.Email
	}
	if p.AvatarURL != nil {
		base.AvatarURL = *p.AvatarURL
	}
	return base
}
