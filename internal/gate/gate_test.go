package gate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"medigate/internal/identity"
	"medigate/internal/session"
	"medigate/internal/verify"
	"medigate/pkg/domain"
)

func authedSnapshot(role domain.Role) session.Snapshot {
	return session.Snapshot{
		Phase:      session.PhaseAuthenticated,
		Generation: 2,
		Identity: &identity.Identity{
			ID:       domain.UserID(uuid.New()),
			Username: "alice",
			Role:     role,
		},
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		snap   session.Snapshot
		status verify.Status
		want   Section
	}{
		{
			name: "anonymous session",
			snap: session.Snapshot{Phase: session.PhaseAnonymous},
			want: SectionAnonymous,
		},
		{
			name: "authenticating session is still outside",
			snap: session.Snapshot{Phase: session.PhaseAuthenticating},
			want: SectionAnonymous,
		},
		{
			name:   "patient ignores verification",
			snap:   authedSnapshot(domain.RolePatient),
			status: verify.StatusBlocked,
			want:   SectionPatient,
		},
		{
			name:   "admin ignores verification",
			snap:   authedSnapshot(domain.RoleAdmin),
			status: verify.StatusPending,
			want:   SectionAdmin,
		},
		{
			name:   "doctor pending",
			snap:   authedSnapshot(domain.RoleDoctor),
			status: verify.StatusPending,
			want:   SectionLoading,
		},
		{
			name:   "doctor blocked",
			snap:   authedSnapshot(domain.RoleDoctor),
			status: verify.StatusBlocked,
			want:   SectionDoctorBlocked,
		},
		{
			name:   "doctor active",
			snap:   authedSnapshot(domain.RoleDoctor),
			status: verify.StatusActive,
			want:   SectionDoctorActive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.snap, tt.status)
			assert.Equal(t, tt.want, got.Section)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestSection_Terminal(t *testing.T) {
	assert.False(t, SectionLoading.Terminal())
	for _, s := range []Section{SectionAnonymous, SectionPatient, SectionDoctorBlocked, SectionDoctorActive, SectionAdmin} {
		assert.True(t, s.Terminal(), string(s))
	}
}

func TestDecide_NeverPartial(t *testing.T) {
	// An authenticated snapshot without an identity must never admit anyone.
	snap := session.Snapshot{Phase: session.PhaseAuthenticated}
	assert.Equal(t, SectionAnonymous, Decide(snap, verify.StatusActive).Section)
}
