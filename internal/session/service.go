// Package session owns the authenticated identity. It is the single owner of
// mutable session state: every mutation goes through one of the public
// operations, which serialize on an internal lock, so transitions are totally
// ordered and observers see them in order.
package session

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medigate/internal/audit"
	"medigate/internal/credstore"
	"medigate/internal/identity"
	"medigate/internal/platform/metrics"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/requestcontext"
)

// Authenticator verifies credentials against the auth backend and returns a
// bearer token. Implementations map transport failures onto the domain error
// taxonomy (invalid_credentials, network_error, server_error).
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// ProfileFetcher resolves the identity behind a bearer token.
type ProfileFetcher interface {
	FetchCurrentUser(ctx context.Context, accessToken string) (identity.Identity, error)
}

// CredentialStore is the slice of credstore.Store the service needs.
type CredentialStore interface {
	Load(ctx context.Context) *credstore.Credentials
	Save(ctx context.Context, creds credstore.Credentials) error
	Clear(ctx context.Context) error
}

// AuditPublisher records session lifecycle events. Optional.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the session state machine.
type Service struct {
	mu sync.Mutex
	// notifyMu is held across "compute transition + notify observers" so
	// notifications cannot interleave out of order. It is acquired while mu
	// is held and released after the callbacks return.
	notifyMu sync.Mutex

	phase      Phase
	ident      *identity.Identity
	token      string
	generation uint64
	// epoch increases on logout only; an in-flight login whose epoch no
	// longer matches discards its result instead of resurrecting a session.
	epoch         uint64
	loginInFlight bool

	observers    map[int]Observer
	nextObserver int

	creds   CredentialStore
	auth    Authenticator
	profile ProfileFetcher

	logger  *slog.Logger
	metrics *metrics.Metrics
	audits  AuditPublisher
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audits = publisher }
}

// New builds a Service in the Anonymous phase.
func New(creds CredentialStore, auth Authenticator, profile ProfileFetcher, opts ...Option) (*Service, error) {
	if creds == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session requires a credential store")
	}
	if auth == nil || profile == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session requires auth and profile collaborators")
	}
	svc := &Service{
		phase:     PhaseAnonymous,
		observers: make(map[int]Observer),
		creds:     creds,
		auth:      auth,
		profile:   profile,
		tracer:    otel.Tracer("medigate/session"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Bootstrap restores a persisted session on process start. The restore is
// optimistic: no network validation happens here; a stale token surfaces as a
// 401 on the first authenticated request and the network layer forces logout.
func (s *Service) Bootstrap(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseAnonymous {
		s.mu.Unlock()
		return
	}
	creds := s.creds.Load(ctx)
	if creds == nil {
		s.mu.Unlock()
		return
	}
	ident := creds.Identity
	s.ident = &ident
	s.token = creds.AccessToken
	s.transitionLocked(PhaseAuthenticated)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "session restored from credential store",
			"user_id", ident.ID, "role", ident.Role)
	}
}

// Login authenticates, fetches the profile, persists credentials, and
// transitions to Authenticated. Only one login may be in flight at a time; a
// concurrent call fails fast with already_in_progress.
//
// A persistence failure after successful authentication still transitions the
// in-memory session to Authenticated: the returned identity is valid together
// with a storage_error the caller should surface ("you are logged in, but the
// session may not survive a restart").
func (s *Service) Login(ctx context.Context, username, password string) (identity.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "session.Login")
	defer span.End()

	s.mu.Lock()
	if s.phase == PhaseAuthenticated {
		s.mu.Unlock()
		return identity.Identity{}, dErrors.New(dErrors.CodeInvalidState, "already authenticated, log out first")
	}
	if s.loginInFlight {
		s.mu.Unlock()
		return identity.Identity{}, dErrors.New(dErrors.CodeAlreadyInProgress, "a login is already in progress")
	}
	s.loginInFlight = true
	startEpoch := s.epoch
	s.transitionLocked(PhaseAuthenticating)

	token, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		return identity.Identity{}, s.failLogin(ctx, username, err)
	}

	ident, err := s.profile.FetchCurrentUser(ctx, token)
	if err != nil {
		return identity.Identity{}, s.failLogin(ctx, username, err)
	}
	if err := ident.Validate(); err != nil {
		return identity.Identity{}, s.failLogin(ctx, username,
			dErrors.Wrap(err, dErrors.CodeServer, "auth backend returned an unusable profile"))
	}
	span.SetAttributes(attribute.String("session.role", ident.Role.String()))

	saveErr := s.creds.Save(ctx, credstore.Credentials{AccessToken: token, Identity: ident})

	s.mu.Lock()
	if s.epoch != startEpoch {
		// Logged out while this login was in flight; drop the result. The
		// clear happens before the in-flight flag is released so it can only
		// scrub this login's own save, never a successor's.
		_ = s.creds.Clear(ctx)
		s.loginInFlight = false
		s.mu.Unlock()
		return identity.Identity{}, dErrors.New(dErrors.CodeInvalidState, "session changed during login")
	}
	s.loginInFlight = false
	s.ident = &ident
	s.token = token
	s.transitionLocked(PhaseAuthenticated)

	s.countLogin("success")
	s.emitAudit(ctx, audit.Event{
		Action:   audit.ActionLoginSucceeded,
		UserID:   ident.ID.String(),
		Username: username,
		Role:     ident.Role.String(),
		Device:   requestcontext.Device(ctx),
	})
	if saveErr != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "credentials not persisted, session will not survive restart",
				"user_id", ident.ID, "error", saveErr)
		}
		return ident, saveErr
	}
	return ident, nil
}

// failLogin rolls an in-flight login back to Anonymous. The lock is not held
// on entry.
func (s *Service) failLogin(ctx context.Context, username string, cause error) error {
	s.mu.Lock()
	s.loginInFlight = false
	s.ident = nil
	s.token = ""
	if s.phase == PhaseAuthenticating {
		s.transitionLocked(PhaseAnonymous)
	} else {
		s.mu.Unlock()
	}

	s.countLogin(string(dErrors.CodeOf(cause)))
	s.emitAudit(ctx, audit.Event{
		Action:   audit.ActionLoginFailed,
		Username: username,
		Reason:   string(dErrors.CodeOf(cause)),
		Device:   requestcontext.Device(ctx),
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "login failed", "username", username, "error", cause)
	}
	return cause
}

// UpdateIdentity merges a profile edit into the current identity and
// re-persists the credential record. Only valid while Authenticated.
func (s *Service) UpdateIdentity(ctx context.Context, patch identity.Patch) (identity.Identity, error) {
	s.mu.Lock()
	if s.phase != PhaseAuthenticated || s.ident == nil {
		s.mu.Unlock()
		return identity.Identity{}, dErrors.New(dErrors.CodeNotAuthenticated, "no authenticated session")
	}
	updated := patch.Apply(*s.ident)
	s.ident = &updated
	token := s.token
	s.transitionLocked(PhaseAuthenticated)

	if err := s.creds.Save(ctx, credstore.Credentials{AccessToken: token, Identity: updated}); err != nil {
		// Same policy as login: the in-memory identity is updated, the
		// caller learns persistence is broken.
		return updated, err
	}
	return updated, nil
}

// Logout clears persisted credentials and returns to Anonymous. It always
// succeeds: a failing store is logged, never propagated, so logout cannot get
// stuck. Calling it while already Anonymous is a no-op.
func (s *Service) Logout(ctx context.Context) {
	s.mu.Lock()
	if s.phase == PhaseAnonymous && !s.loginInFlight {
		s.mu.Unlock()
		return
	}
	prior := s.ident
	s.ident = nil
	s.token = ""
	s.epoch++
	if err := s.creds.Clear(ctx); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "credential clear failed during logout", "error", err)
	}
	s.transitionLocked(PhaseAnonymous)

	if s.metrics != nil {
		s.metrics.Logouts.Inc()
	}
	event := audit.Event{Action: audit.ActionLogout, Device: requestcontext.Device(ctx)}
	if prior != nil {
		event.UserID = prior.ID.String()
		event.Role = prior.Role.String()
	}
	s.emitAudit(ctx, event)
}

// Subscribe registers an observer for every subsequent transition and returns
// its unsubscribe function. Unsubscribing during a notification is safe and
// does not affect delivery to other observers.
func (s *Service) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// CurrentIdentity returns a copy of the authenticated identity, or nil.
func (s *Service) CurrentIdentity() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ident == nil {
		return nil
	}
	ident := *s.ident
	return &ident
}

// AccessToken returns the bearer token for the network layer, or "".
func (s *Service) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// CurrentSnapshot returns the session state as observers would see it.
func (s *Service) CurrentSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// transitionLocked bumps the generation, publishes the new snapshot, and
// releases mu. Callers must hold mu and must not use it afterwards.
func (s *Service) transitionLocked(next Phase) {
	s.phase = next
	s.generation++
	snapshot := s.snapshotLocked()

	s.notifyMu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
	s.notifyMu.Unlock()
}

func (s *Service) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: s.phase, Generation: s.generation}
	if s.phase == PhaseAuthenticated && s.ident != nil {
		ident := *s.ident
		snap.Identity = &ident
	}
	return snap
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audits == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.audits.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
