// Package credstore persists the bearer token and cached user profile across
// process restarts. The token and its identity are written as one logical
// record so a crash can never leave a token without its matching profile.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"medigate/internal/identity"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/sentinel"
)

// DefaultKey is the record key used unless WithKey overrides it.
const DefaultKey = "medigate:credentials"

// KV is the durable key-value contract the store persists through.
// Implementations must return sentinel.ErrNotFound for missing keys and make
// Delete idempotent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Credentials is the durable record of "someone is logged in".
type Credentials struct {
	AccessToken string            `json:"access_token"`
	Identity    identity.Identity `json:"identity"`
}

// Store reads and writes the credential record. Load fails soft: any read
// problem means "no credentials", never an error the caller must handle.
type Store struct {
	kv     KV
	key    string
	sealer *Sealer
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger for swallowed read failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithSealer encrypts the record at rest.
func WithSealer(sealer *Sealer) Option {
	return func(s *Store) { s.sealer = sealer }
}

// WithKey overrides the record key, for tests that share a KV.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// New builds a Store over the given KV.
func New(kv KV, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential store requires a KV backend")
	}
	s := &Store{kv: kv, key: DefaultKey}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the persisted credentials, or nil when there are none.
// Missing, corrupt, unreadable, or inconsistent records all soft-fail to nil;
// the session simply starts anonymous.
func (s *Store) Load(ctx context.Context) *Credentials {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.warn(ctx, "credential read failed, starting anonymous", err)
		}
		return nil
	}

	if s.sealer != nil {
		raw, err = s.sealer.Open(raw)
		if err != nil {
			s.warn(ctx, "credential record failed to unseal, starting anonymous", err)
			return nil
		}
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		s.warn(ctx, "credential record is corrupt, starting anonymous", err)
		return nil
	}
	if creds.AccessToken == "" {
		return nil
	}
	if err := creds.Identity.Validate(); err != nil {
		s.warn(ctx, "cached identity is invalid, starting anonymous", err)
		return nil
	}
	if err := reconcile(creds); err != nil {
		s.warn(ctx, "token does not match cached identity, starting anonymous", err)
		return nil
	}
	return &creds
}

// Save overwrites the record atomically: the KV receives one value holding
// both the token and its identity.
func (s *Store) Save(ctx context.Context, creds Credentials) error {
	if creds.AccessToken == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "credentials require an access token")
	}
	if err := creds.Identity.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(creds)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "encode credentials")
	}
	if s.sealer != nil {
		raw, err = s.sealer.Seal(raw)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "seal credentials")
		}
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "persist credentials")
	}
	return nil
}

// Clear removes the record. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeStorage, "clear credentials")
	}
	return nil
}

// reconcile enforces the invariant that the persisted token and identity were
// issued together. Tokens that are not JWTs (or carry no subject) pass; a JWT
// whose subject names a different user fails.
func reconcile(creds Credentials) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(creds.AccessToken, claims); err != nil {
		return nil // opaque token, nothing to cross-check
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil
	}
	if sub != creds.Identity.ID.String() {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *Store) warn(ctx context.Context, msg string, err error) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, "error", err)
	}
}
