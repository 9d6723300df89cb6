package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medigate/internal/identity"
	"medigate/internal/verify"
	"medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/sentinel"
)

func TestAuthClient_Authenticate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/auth/login", r.URL.Path)
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "alice", req["username"])
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		}))
		defer srv.Close()

		client, err := NewAuthClient(srv.URL)
		require.NoError(t, err)
		token, err := client.Authenticate(context.Background(), "alice", "pw")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	})

	t.Run("401 maps to invalid credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		client, err := NewAuthClient(srv.URL)
		require.NoError(t, err)
		_, err = client.Authenticate(context.Background(), "alice", "wrong")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	t.Run("5xx maps to server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client, err := NewAuthClient(srv.URL)
		require.NoError(t, err)
		_, err = client.Authenticate(context.Background(), "alice", "pw")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeServer))
	})

	t.Run("unreachable backend maps to network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close() // nothing listens anymore

		client, err := NewAuthClient(srv.URL)
		require.NoError(t, err)
		_, err = client.Authenticate(context.Background(), "alice", "pw")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNetwork))
	})

	t.Run("missing token in response is a server fault", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{})
		}))
		defer srv.Close()

		client, err := NewAuthClient(srv.URL)
		require.NoError(t, err)
		_, err = client.Authenticate(context.Background(), "alice", "pw")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeServer))
	})
}

func TestProfileClient_FetchCurrentUser(t *testing.T) {
	ident := identity.Identity{
		ID:       domain.UserID(uuid.New()),
		Username: "alice",
		FullName: "Alice Moreau",
		Email:    "alice@example.com",
		Role:     domain.RoleDoctor,
	}

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/users/me", r.URL.Path)
			require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(ident)
		}))
		defer srv.Close()

		client, err := NewProfileClient(srv.URL)
		require.NoError(t, err)
		got, err := client.FetchCurrentUser(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, ident, got)
	})

	t.Run("401 maps to not authenticated", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		client, err := NewProfileClient(srv.URL)
		require.NoError(t, err)
		_, err = client.FetchCurrentUser(context.Background(), "tok-stale")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAuthenticated))
	})

	t.Run("unusable identity is a server fault", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"username": "ghost"})
		}))
		defer srv.Close()

		client, err := NewProfileClient(srv.URL)
		require.NoError(t, err)
		_, err = client.FetchCurrentUser(context.Background(), "tok-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeServer))
	})
}

func TestDirectoryClient_FindDoctorByUserID(t *testing.T) {
	userID := domain.UserID(uuid.New())
	record := verify.DoctorRecord{
		DoctorID: domain.DoctorID(uuid.New()),
		UserID:   userID,
		Verified: true,
	}

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/doctors/by-user/"+userID.String(), r.URL.Path)
			_ = json.NewEncoder(w).Encode(record)
		}))
		defer srv.Close()

		client, err := NewDirectoryClient(srv.URL)
		require.NoError(t, err)
		got, err := client.FindDoctorByUserID(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, record, got)
	})

	t.Run("404 is the not-found sentinel, not an error code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client, err := NewDirectoryClient(srv.URL)
		require.NoError(t, err)
		_, err = client.FindDoctorByUserID(context.Background(), userID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("5xx maps to server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		client, err := NewDirectoryClient(srv.URL)
		require.NoError(t, err)
		_, err = client.FindDoctorByUserID(context.Background(), userID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeServer))
	})
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewAuthClient("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestClient_CircuitOpensAfterRepeatedTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listens anymore

	client, err := NewAuthClient(srv.URL)
	require.NoError(t, err)
	for range 5 {
		_, err = client.Authenticate(context.Background(), "alice", "pw")
		require.Error(t, err)
	}

	assert.True(t, client.breaker.IsOpen())
	_, err = client.Authenticate(context.Background(), "alice", "pw")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNetwork))
}

func TestClient_StatusCodesDoNotTripTheCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewAuthClient(srv.URL)
	require.NoError(t, err)
	for range 10 {
		_, err = client.Authenticate(context.Background(), "alice", "pw")
		require.Error(t, err)
	}
	assert.False(t, client.breaker.IsOpen(), "a responding backend is not a transport fault")
}
