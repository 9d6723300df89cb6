// Package verify resolves whether a doctor account may practice. Non-doctor
// roles are never subject to verification and resolve synchronously; doctors
// are looked up in the doctor directory and the verdict is cached for the
// lifetime of the session.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"medigate/internal/identity"
	"medigate/internal/platform/metrics"
	"medigate/pkg/domain"
	"medigate/pkg/platform/sentinel"
)

// Status is the tagged verification state. Pending is never returned by the
// resolver itself; it is the state a caller holds while a lookup is in flight.
type Status string

const (
	StatusPending Status = "pending"
	StatusBlocked Status = "blocked"
	StatusActive  Status = "active"
)

// Verdict is the outcome of resolving one identity. DoctorID is zero for
// non-doctors and for doctors without a directory record.
type Verdict struct {
	DoctorID domain.DoctorID `json:"doctor_id"`
	Status   Status          `json:"status"`
}

// DoctorRecord is the directory's view of a registered doctor.
type DoctorRecord struct {
	DoctorID domain.DoctorID `json:"doctor_id"`
	UserID   domain.UserID   `json:"user_id"`
	Verified bool            `json:"is_verified"`
}

// DoctorDirectory looks up the doctor record behind a user account. A missing
// record is reported as sentinel.ErrNotFound, not as a domain error.
type DoctorDirectory interface {
	FindDoctorByUserID(ctx context.Context, userID domain.UserID) (DoctorRecord, error)
}

// FailPolicy decides the verdict when the directory is unreachable.
type FailPolicy int

const (
	// FailOpen treats an unreachable directory as "verified" so a transient
	// outage does not lock working doctors out. This silently admits doctors
	// whose verification was never confirmed; see FailClosed.
	FailOpen FailPolicy = iota
	// FailClosed treats an unreachable directory as "blocked".
	FailClosed
)

// Resolver answers "may this identity act as a verified doctor" and caches
// per-user verdicts until Invalidate or Reset. Concurrent lookups for the same
// user collapse into a single directory call.
type Resolver struct {
	directory DoctorDirectory
	policy    FailPolicy

	mu    sync.RWMutex
	cache map[domain.UserID]Verdict
	// epoch advances on Reset; a lookup that started before the reset must
	// not write its verdict into the next session's cache.
	epoch uint64
	group singleflight.Group

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithFailPolicy(policy FailPolicy) Option {
	return func(r *Resolver) { r.policy = policy }
}

func NewResolver(directory DoctorDirectory, opts ...Option) *Resolver {
	r := &Resolver{
		directory: directory,
		policy:    FailOpen,
		cache:     make(map[domain.UserID]Verdict),
		tracer:    otel.Tracer("medigate/verify"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the terminal verdict for an identity. It never returns
// Pending and never fails: directory errors collapse into a verdict through
// the configured FailPolicy.
//
// Non-doctor roles return Active immediately with no directory call.
func (r *Resolver) Resolve(ctx context.Context, ident identity.Identity) Verdict {
	if ident.Role != domain.RoleDoctor {
		return Verdict{Status: StatusActive}
	}

	r.mu.RLock()
	cached, ok := r.cache[ident.ID]
	epoch := r.epoch
	r.mu.RUnlock()
	if ok {
		if r.metrics != nil {
			r.metrics.VerificationHits.Inc()
		}
		return cached
	}

	v, _, _ := r.group.Do(ident.ID.String(), func() (any, error) {
		verdict := r.lookup(ctx, ident.ID)
		r.mu.Lock()
		if r.epoch == epoch {
			r.cache[ident.ID] = verdict
		}
		r.mu.Unlock()
		return verdict, nil
	})
	return v.(Verdict)
}

// Cached returns the verdict already held for a user without touching the
// directory. It lets callers recompute decisions synchronously when the
// verdict is known.
func (r *Resolver) Cached(userID domain.UserID) (Verdict, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	verdict, ok := r.cache[userID]
	return verdict, ok
}

// Invalidate drops the cached verdict for one user, forcing the next Resolve
// to hit the directory again. Called after a license upload.
func (r *Resolver) Invalidate(userID domain.UserID) {
	r.group.Forget(userID.String())
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// Reset drops every cached verdict. Called on logout: verdicts belong to a
// session, not to the process.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[domain.UserID]Verdict)
	r.epoch++
	r.mu.Unlock()
}

func (r *Resolver) lookup(ctx context.Context, userID domain.UserID) Verdict {
	ctx, span := r.tracer.Start(ctx, "verify.lookup",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	if r.metrics != nil {
		r.metrics.DoctorLookups.Inc()
	}

	record, err := r.directory.FindDoctorByUserID(ctx, userID)
	switch {
	case err == nil:
		status := StatusBlocked
		if record.Verified {
			status = StatusActive
		}
		span.SetAttributes(attribute.String("verify.status", string(status)))
		return Verdict{DoctorID: record.DoctorID, Status: status}

	case errors.Is(err, sentinel.ErrNotFound):
		// No directory record yet: the doctor has not finished registration.
		return Verdict{Status: StatusBlocked}

	default:
		if r.policy == FailClosed {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "doctor directory unavailable, blocking",
					"user_id", userID, "error", err)
			}
			return Verdict{Status: StatusBlocked}
		}
		if r.metrics != nil {
			r.metrics.FailOpenDecisions.Inc()
		}
		if r.logger != nil {
			r.logger.WarnContext(ctx, "doctor directory unavailable, failing open",
				"user_id", userID, "error", err)
		}
		return Verdict{Status: StatusActive}
	}
}
