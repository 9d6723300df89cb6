// Package gate derives which application section a session may enter. The
// decision table itself is a pure function; the Controller around it listens
// to session transitions, drives doctor verification, and pushes every new
// EntryDecision to its observers.
package gate

import (
	"medigate/internal/session"
	"medigate/internal/verify"
	"medigate/pkg/domain"
)

// Section names the area of the application a session is admitted to.
type Section string

const (
	SectionAnonymous     Section = "anonymous"
	SectionLoading       Section = "loading"
	SectionPatient       Section = "patient"
	SectionDoctorBlocked Section = "doctor-blocked"
	SectionDoctorActive  Section = "doctor-active"
	SectionAdmin         Section = "admin"
)

// Terminal reports whether a section is a final answer. Loading is the one
// transient section: it must always give way to a terminal one within a
// single verification round-trip.
func (s Section) Terminal() bool {
	return s != SectionLoading
}

// EntryDecision is derived, never stored. It is recomputed wholesale from the
// session snapshot and the verification status, so observers either hold a
// previous decision or the newest one, never a mix.
type EntryDecision struct {
	Section Section `json:"section"`
	Reason  string  `json:"reason"`
}

// Decide maps a session snapshot and a verification status onto a section.
// The status only matters for authenticated doctors; every other row of the
// table ignores it.
func Decide(snap session.Snapshot, status verify.Status) EntryDecision {
	if snap.Phase != session.PhaseAuthenticated || snap.Identity == nil {
		return EntryDecision{Section: SectionAnonymous, Reason: "no authenticated session"}
	}
	switch snap.Identity.Role {
	case domain.RolePatient:
		return EntryDecision{Section: SectionPatient, Reason: "patient session"}
	case domain.RoleAdmin:
		return EntryDecision{Section: SectionAdmin, Reason: "admin session"}
	case domain.RoleDoctor:
		switch status {
		case verify.StatusActive:
			return EntryDecision{Section: SectionDoctorActive, Reason: "doctor verification confirmed"}
		case verify.StatusBlocked:
			return EntryDecision{Section: SectionDoctorBlocked, Reason: "doctor verification missing or rejected"}
		default:
			return EntryDecision{Section: SectionLoading, Reason: "doctor verification pending"}
		}
	default:
		// Unknown roles never reach here through the session service, which
		// validates identities before accepting them.
		return EntryDecision{Section: SectionAnonymous, Reason: "unrecognized role"}
	}
}
