package gate

import (
	"context"
	"log/slog"
	"sync"

	"medigate/internal/audit"
	"medigate/internal/identity"
	"medigate/internal/platform/metrics"
	"medigate/internal/session"
	"medigate/internal/verify"
	"medigate/pkg/domain"
)

// SessionSource is the slice of session.Service the controller needs.
type SessionSource interface {
	Subscribe(fn session.Observer) func()
	CurrentSnapshot() session.Snapshot
}

// VerificationResolver is the slice of verify.Resolver the controller needs.
type VerificationResolver interface {
	Resolve(ctx context.Context, ident identity.Identity) verify.Verdict
	Cached(userID domain.UserID) (verify.Verdict, bool)
	Reset()
}

// AuditPublisher records entry decisions. Optional.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Controller republishes an EntryDecision whenever the session or a doctor's
// verification status changes. It is push-driven: nothing polls it.
//
// Decisions carry the generation of the session snapshot they were derived
// from; a verification result that arrives after the session has moved on
// (logout, re-login) is discarded rather than applied to the wrong session.
type Controller struct {
	sessions SessionSource
	resolver VerificationResolver

	mu sync.Mutex
	// notifyMu serializes decision publication the same way the session
	// service serializes transition notifications.
	notifyMu sync.Mutex

	gen     uint64
	current EntryDecision

	observers    map[int]func(EntryDecision)
	nextObserver int

	ctx         context.Context
	unsubscribe func()

	logger  *slog.Logger
	metrics *metrics.Metrics
	audits  AuditPublisher
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *Controller) { c.audits = publisher }
}

func NewController(sessions SessionSource, resolver VerificationResolver, opts ...Option) *Controller {
	c := &Controller{
		sessions:  sessions,
		resolver:  resolver,
		current:   EntryDecision{Section: SectionAnonymous, Reason: "no authenticated session"},
		observers: make(map[int]func(EntryDecision)),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the session, evaluates the current snapshot once, and
// keeps republishing until Stop. ctx bounds the background verification
// lookups Start may spawn.
func (c *Controller) Start(ctx context.Context) {
	c.ctx = ctx
	c.unsubscribe = c.sessions.Subscribe(c.onSession)
	c.onSession(c.sessions.CurrentSnapshot())
}

// Stop detaches from the session. In-flight verification lookups resolve
// through their context; their results are dropped by the generation guard.
func (c *Controller) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// ObserveEntryDecision registers an observer and synchronously delivers the
// current decision to it, so a new subscriber never renders from nothing.
// Returns the unsubscribe function.
func (c *Controller) ObserveEntryDecision(fn func(EntryDecision)) func() {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	current := c.current
	c.notifyMu.Lock()
	c.mu.Unlock()

	fn(current)
	c.notifyMu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// CurrentDecision returns the latest published decision.
func (c *Controller) CurrentDecision() EntryDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Refresh re-evaluates the current session snapshot. Called after a
// verification invalidation (license upload) so a blocked doctor can be
// re-checked without logging out.
func (c *Controller) Refresh() {
	c.onSession(c.sessions.CurrentSnapshot())
}

// onSession runs synchronously inside the session's notification, so
// subscribed snapshots arrive here in transition order. Refresh feeds it too,
// and a Refresh can race a logout: the snapshot it read may predate a
// transition that already published. Snapshots older than the published
// generation are dropped so a pre-logout identity can never resurface.
func (c *Controller) onSession(snap session.Snapshot) {
	c.mu.Lock()
	if snap.Generation < c.gen {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Debug("discarding outdated session snapshot",
				"generation", snap.Generation, "phase", snap.Phase)
		}
		return
	}
	c.gen = snap.Generation

	if snap.Phase == session.PhaseAnonymous {
		// Verification verdicts belong to the session that fetched them.
		c.resolver.Reset()
	}

	status := verify.StatusPending
	launchLookup := false
	if snap.Phase == session.PhaseAuthenticated && snap.Identity != nil &&
		snap.Identity.Role == domain.RoleDoctor {
		if cached, ok := c.resolver.Cached(snap.Identity.ID); ok {
			status = cached.Status
		} else {
			launchLookup = true
		}
	}

	c.publishLocked(snap, Decide(snap, status))

	if launchLookup {
		go c.resolveDoctor(c.ctx, snap)
	}
}

func (c *Controller) resolveDoctor(ctx context.Context, snap session.Snapshot) {
	verdict := c.resolver.Resolve(ctx, *snap.Identity)

	c.mu.Lock()
	if c.gen != snap.Generation {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.DebugContext(ctx, "discarding stale verification result",
				"user_id", snap.Identity.ID, "status", verdict.Status)
		}
		return
	}
	c.publishLocked(snap, Decide(snap, verdict.Status))
}

// publishLocked stores the decision, releases mu, and notifies observers
// under notifyMu so deliveries cannot interleave out of order. Callers must
// hold mu and must not use it afterwards.
func (c *Controller) publishLocked(snap session.Snapshot, decision EntryDecision) {
	c.current = decision

	c.notifyMu.Lock()
	observers := make([]func(EntryDecision), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(decision)
	}
	c.notifyMu.Unlock()

	if c.metrics != nil {
		c.metrics.EntryDecisions.WithLabelValues(string(decision.Section)).Inc()
	}
	if c.audits != nil && decision.Section.Terminal() {
		event := audit.Event{
			Action:  audit.ActionEntryDecision,
			Section: string(decision.Section),
			Reason:  decision.Reason,
		}
		if snap.Identity != nil {
			event.UserID = snap.Identity.ID.String()
			event.Role = snap.Identity.Role.String()
		}
		if err := c.audits.Emit(c.ctx, event); err != nil && c.logger != nil {
			c.logger.Warn("audit emit failed", "action", event.Action, "error", err)
		}
	}
}
