package session

import "medigate/internal/identity"

// Phase is the session lifecycle state. Transitions are strictly
// Anonymous → Authenticating → Authenticated → Anonymous; re-authentication
// always starts from Anonymous again.
type Phase string

const (
	PhaseAnonymous      Phase = "anonymous"
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthenticated  Phase = "authenticated"
)

// Snapshot is an immutable view of the session handed to observers and
// snapshot readers. Identity is non-nil exactly when Phase is Authenticated.
type Snapshot struct {
	Phase    Phase
	Identity *identity.Identity

	// Generation increases on every transition. Consumers that launch
	// asynchronous work off a snapshot use it to discard stale results.
	Generation uint64
}

// Observer receives every state transition, synchronously and in order.
// Observers must not call mutating session operations from inside the
// callback; snapshot reads and Unsubscribe are safe.
type Observer func(Snapshot)
