package credstore

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medigate/internal/identity"
	"medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
)

func testIdentity(role domain.Role) identity.Identity {
	return identity.Identity{
		ID:       domain.UserID(uuid.New()),
		Username: "alice",
		FullName: "Alice Moreau",
		Email:    "alice@example.com",
		Role:     role,
	}
}

// mintToken signs an HS256 token with the given subject, mimicking what the
// auth backend hands out.
func mintToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

func TestStore_LoadSaveClear(t *testing.T) {
	ctx := context.Background()

	t.Run("load on empty store returns nil", func(t *testing.T) {
		store, err := New(NewInMemoryKV())
		require.NoError(t, err)
		assert.Nil(t, store.Load(ctx))
	})

	t.Run("save then load round-trips the record", func(t *testing.T) {
		store, err := New(NewInMemoryKV())
		require.NoError(t, err)

		ident := testIdentity(domain.RolePatient)
		creds := Credentials{AccessToken: mintToken(t, ident.ID.String()), Identity: ident}
		require.NoError(t, store.Save(ctx, creds))

		got := store.Load(ctx)
		require.NotNil(t, got)
		assert.Equal(t, creds, *got)
	})

	t.Run("opaque tokens are accepted without reconciliation", func(t *testing.T) {
		store, err := New(NewInMemoryKV())
		require.NoError(t, err)

		creds := Credentials{AccessToken: "opaque-session-token", Identity: testIdentity(domain.RoleAdmin)}
		require.NoError(t, store.Save(ctx, creds))
		require.NotNil(t, store.Load(ctx))
	})

	t.Run("token subject mismatch soft-fails to nil", func(t *testing.T) {
		store, err := New(NewInMemoryKV())
		require.NoError(t, err)

		creds := Credentials{
			AccessToken: mintToken(t, uuid.NewString()), // some other user's token
			Identity:    testIdentity(domain.RolePatient),
		}
		require.NoError(t, store.Save(ctx, creds))
		assert.Nil(t, store.Load(ctx))
	})

	t.Run("corrupt record soft-fails to nil", func(t *testing.T) {
		kv := NewInMemoryKV()
		store, err := New(kv)
		require.NoError(t, err)

		require.NoError(t, kv.Set(ctx, DefaultKey, []byte("{not json")))
		assert.Nil(t, store.Load(ctx))
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		store, err := New(NewInMemoryKV())
		require.NoError(t, err)

		ident := testIdentity(domain.RoleDoctor)
		require.NoError(t, store.Save(ctx, Credentials{AccessToken: mintToken(t, ident.ID.String()), Identity: ident}))

		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))
		assert.Nil(t, store.Load(ctx))
	})

	t.Run("save rejects a token without identity", func(t *testing.T) {
		store, err := New(NewInMemoryKV())
		require.NoError(t, err)

		err = store.Save(ctx, Credentials{AccessToken: "tok"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		err = store.Save(ctx, Credentials{Identity: testIdentity(domain.RolePatient)})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// failingKV simulates a broken storage backend.
type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Set(context.Context, string, []byte) error { return f.err }
func (f failingKV) Delete(context.Context, string) error { return f.err }

func TestStore_StorageFailures(t *testing.T) {
	ctx := context.Background()
	broken := failingKV{err: errors.New("disk on fire")}

	store, err := New(broken)
	require.NoError(t, err)

	t.Run("read failure is treated as no credentials", func(t *testing.T) {
		assert.Nil(t, store.Load(ctx))
	})

	t.Run("write failure surfaces a storage error", func(t *testing.T) {
		ident := testIdentity(domain.RolePatient)
		err := store.Save(ctx, Credentials{AccessToken: mintToken(t, ident.ID.String()), Identity: ident})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStorage))
	})

	t.Run("clear failure surfaces a storage error", func(t *testing.T) {
		err := store.Clear(ctx)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStorage))
	})
}

func TestStore_Sealed(t *testing.T) {
	ctx := context.Background()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	kv := NewInMemoryKV()
	store, err := New(kv, WithSealer(sealer))
	require.NoError(t, err)

	ident := testIdentity(domain.RoleDoctor)
	creds := Credentials{AccessToken: mintToken(t, ident.ID.String()), Identity: ident}
	require.NoError(t, store.Save(ctx, creds))

	t.Run("round-trips through the sealer", func(t *testing.T) {
		got := store.Load(ctx)
		require.NotNil(t, got)
		assert.Equal(t, creds, *got)
	})

	t.Run("record on disk is not plaintext", func(t *testing.T) {
		raw, err := kv.Get(ctx, DefaultKey)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), creds.AccessToken)
	})

	t.Run("wrong key soft-fails to nil", func(t *testing.T) {
		otherKey := make([]byte, 32)
		_, err := rand.Read(otherKey)
		require.NoError(t, err)
		otherSealer, err := NewSealer(otherKey)
		require.NoError(t, err)

		otherStore, err := New(kv, WithSealer(otherSealer))
		require.NoError(t, err)
		assert.Nil(t, otherStore.Load(ctx))
	})
}

func TestSealer(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	t.Run("rejects short keys", func(t *testing.T) {
		_, err := NewSealer([]byte("short"))
		require.Error(t, err)
	})

	t.Run("tampered box fails to open", func(t *testing.T) {
		box, err := sealer.Seal([]byte("payload"))
		require.NoError(t, err)
		box[len(box)-1] ^= 0xFF
		_, err = sealer.Open(box)
		require.Error(t, err)
	})

	t.Run("truncated box fails to open", func(t *testing.T) {
		_, err := sealer.Open([]byte("tiny"))
		require.Error(t, err)
	})
}
