package verify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medigate/internal/identity"
	"medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/sentinel"
)

// stubDirectory counts lookups and answers through fn.
type stubDirectory struct {
	calls atomic.Int64
	fn    func(ctx context.Context, userID domain.UserID) (DoctorRecord, error)
}

func (d *stubDirectory) FindDoctorByUserID(ctx context.Context, userID domain.UserID) (DoctorRecord, error) {
	d.calls.Add(1)
	return d.fn(ctx, userID)
}

func doctorIdentity() identity.Identity {
	return identity.Identity{
		ID:       domain.UserID(uuid.New()),
		Username: "dr.moreau",
		FullName: "Dr. Alice Moreau",
		Email:    "alice@clinic.example",
		Role:     domain.RoleDoctor,
	}
}

func TestResolver_NonDoctorNeverLooksUp(t *testing.T) {
	dir := &stubDirectory{fn: func(context.Context, domain.UserID) (DoctorRecord, error) {
		t.Fatal("directory must not be called for non-doctors")
		return DoctorRecord{}, nil
	}}
	r := NewResolver(dir)

	for _, role := range []domain.Role{domain.RolePatient, domain.RoleAdmin} {
		ident := doctorIdentity()
		ident.Role = role
		verdict := r.Resolve(context.Background(), ident)
		assert.Equal(t, StatusActive, verdict.Status)
		assert.True(t, verdict.DoctorID.IsNil())
	}
	assert.Zero(t, dir.calls.Load())
}

func TestResolver_DoctorVerdicts(t *testing.T) {
	doctorID := domain.DoctorID(uuid.New())

	tests := []struct {
		name       string
		record     DoctorRecord
		err        error
		policy     FailPolicy
		wantStatus Status
	}{
		{
			name:       "verified doctor is active",
			record:     DoctorRecord{DoctorID: doctorID, Verified: true},
			wantStatus: StatusActive,
		},
		{
			name:       "unverified doctor is blocked",
			record:     DoctorRecord{DoctorID: doctorID, Verified: false},
			wantStatus: StatusBlocked,
		},
		{
			name:       "no directory record blocks",
			err:        sentinel.ErrNotFound,
			wantStatus: StatusBlocked,
		},
		{
			name:       "directory outage fails open by default",
			err:        dErrors.New(dErrors.CodeNetwork, "connection refused"),
			wantStatus: StatusActive,
		},
		{
			name:       "directory outage blocks under fail-closed",
			err:        dErrors.New(dErrors.CodeServer, "upstream 503"),
			policy:     FailClosed,
			wantStatus: StatusBlocked,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &stubDirectory{fn: func(context.Context, domain.UserID) (DoctorRecord, error) {
				return tt.record, tt.err
			}}
			r := NewResolver(dir, WithFailPolicy(tt.policy))

			verdict := r.Resolve(context.Background(), doctorIdentity())
			assert.Equal(t, tt.wantStatus, verdict.Status)
			assert.Equal(t, tt.record.DoctorID, verdict.DoctorID)
			assert.Equal(t, int64(1), dir.calls.Load())
		})
	}
}

func TestResolver_CachesPerUser(t *testing.T) {
	ident := doctorIdentity()
	dir := &stubDirectory{fn: func(context.Context, domain.UserID) (DoctorRecord, error) {
		return DoctorRecord{DoctorID: domain.DoctorID(uuid.New()), Verified: true}, nil
	}}
	r := NewResolver(dir)

	first := r.Resolve(context.Background(), ident)
	second := r.Resolve(context.Background(), ident)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), dir.calls.Load(), "second resolve must come from cache")

	other := doctorIdentity()
	r.Resolve(context.Background(), other)
	assert.Equal(t, int64(2), dir.calls.Load(), "cache is keyed per user")
}

func TestResolver_InvalidateForcesRefetch(t *testing.T) {
	ident := doctorIdentity()
	verified := false
	dir := &stubDirectory{fn: func(context.Context, domain.UserID) (DoctorRecord, error) {
		return DoctorRecord{DoctorID: domain.DoctorID(uuid.New()), Verified: verified}, nil
	}}
	r := NewResolver(dir)

	require.Equal(t, StatusBlocked, r.Resolve(context.Background(), ident).Status)

	// License upload approved: the directory now reports verified.
	verified = true
	r.Invalidate(ident.ID)
	assert.Equal(t, StatusActive, r.Resolve(context.Background(), ident).Status)
	assert.Equal(t, int64(2), dir.calls.Load())
}

func TestResolver_ResetDropsAllVerdicts(t *testing.T) {
	ident := doctorIdentity()
	dir := &stubDirectory{fn: func(context.Context, domain.UserID) (DoctorRecord, error) {
		return DoctorRecord{Verified: true}, nil
	}}
	r := NewResolver(dir)

	r.Resolve(context.Background(), ident)
	r.Reset()
	r.Resolve(context.Background(), ident)
	assert.Equal(t, int64(2), dir.calls.Load())
}

func TestResolver_DeduplicatesConcurrentLookups(t *testing.T) {
	ident := doctorIdentity()
	release := make(chan struct{})
	dir := &stubDirectory{fn: func(context.Context, domain.UserID) (DoctorRecord, error) {
		<-release
		return DoctorRecord{Verified: true}, nil
	}}
	r := NewResolver(dir)

	const concurrency = 8
	var wg sync.WaitGroup
	verdicts := make([]Verdict, concurrency)
	for i := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdicts[i] = r.Resolve(context.Background(), ident)
		}()
	}
	// Give every goroutine time to park on the shared in-flight lookup.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), dir.calls.Load(), "in-flight lookup must be shared")
	for _, v := range verdicts {
		assert.Equal(t, StatusActive, v.Status)
	}
}
