package test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medigate/internal/credstore"
	"medigate/internal/gate"
	"medigate/internal/identity"
	"medigate/internal/session"
	httptransport "medigate/internal/transport/http"
	"medigate/internal/verify"
	"medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/sentinel"
	"medigate/pkg/testutil"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, _, password string) (string, error) {
	if password != "pw" {
		return "", dErrors.New(dErrors.CodeInvalidCredentials, "username or password is incorrect")
	}
	return "tok-1", nil
}

type fakeProfile struct{ ident identity.Identity }

func (p fakeProfile) FetchCurrentUser(context.Context, string) (identity.Identity, error) {
	return p.ident, nil
}

type fakeDirectory struct{ record *verify.DoctorRecord }

func (d fakeDirectory) FindDoctorByUserID(context.Context, domain.UserID) (verify.DoctorRecord, error) {
	if d.record == nil {
		return verify.DoctorRecord{}, sentinel.ErrNotFound
	}
	return *d.record, nil
}

// buildRouter wires the full stack in process: real session, resolver, and
// gate over in-memory storage and fake backends.
func buildRouter(t *testing.T, ident identity.Identity, record *verify.DoctorRecord) http.Handler {
	t.Helper()
	store, err := credstore.New(credstore.NewInMemoryKV())
	require.NoError(t, err)
	sessions, err := session.New(store, fakeAuth{}, fakeProfile{ident: ident})
	require.NoError(t, err)
	resolver := verify.NewResolver(fakeDirectory{record: record})
	controller := gate.NewController(sessions, resolver)
	controller.Start(context.Background())
	t.Cleanup(controller.Stop)

	handler := httptransport.NewHandler(sessions, controller, resolver)
	return httptransport.NewRouter(handler, slog.New(slog.DiscardHandler))
}

func TestGatewayEndToEnd(t *testing.T) {
	patient := identity.Identity{
		ID:       domain.UserID(uuid.New()),
		Username: "bob",
		FullName: "Bob Leclerc",
		Email:    "bob@example.com",
		Role:     domain.RolePatient,
	}

	testutil.Given(t, "a patient account", func(t *testing.T) {
		router := buildRouter(t, patient, nil)

		testutil.When(t, "logging in with the wrong password", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/session/login",
				map[string]string{"username": "bob", "password": "nope"})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the login is rejected", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "invalid_credentials")
			})
		})

		testutil.When(t, "logging in with the right password", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/session/login",
				map[string]string{"username": "bob", "password": "pw"})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the session opens and the patient section is granted", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)

				decision := testutil.DoRequest(router,
					testutil.NewRequest(t, http.MethodGet, "/v1/session/decision"))
				testutil.AssertStatusOK(t, decision)
				testutil.AssertJSONContains(t, decision, "section", "patient")
			})
		})

		testutil.When(t, "logging out", func(t *testing.T) {
			rr := testutil.DoRequest(router,
				testutil.NewRequest(t, http.MethodPost, "/v1/session/logout"))

			testutil.Then(t, "the decision falls back to anonymous", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusNoContent)

				decision := testutil.DoRequest(router,
					testutil.NewRequest(t, http.MethodGet, "/v1/session/decision"))
				testutil.AssertJSONContains(t, decision, "section", "anonymous")
			})
		})
	})

	doctor := identity.Identity{
		ID:       domain.UserID(uuid.New()),
		Username: "alice",
		FullName: "Dr. Alice Moreau",
		Email:    "alice@clinic.example",
		Role:     domain.RoleDoctor,
	}

	testutil.Given(t, "a doctor account without a directory record", func(t *testing.T) {
		router := buildRouter(t, doctor, nil)

		testutil.When(t, "logging in", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/session/login",
				map[string]string{"username": "alice", "password": "pw"})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the doctor lands on the blocked section", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)

				assert.Eventually(t, func() bool {
					decision := testutil.DoRequest(router,
						testutil.NewRequest(t, http.MethodGet, "/v1/session/decision"))
					body := testutil.UnmarshalResponse[gate.EntryDecision](t, decision)
					return body.Section == gate.SectionDoctorBlocked
				}, time.Second, 5*time.Millisecond)
			})
		})
	})

	testutil.Given(t, "a verified doctor account", func(t *testing.T) {
		record := &verify.DoctorRecord{
			DoctorID: domain.DoctorID(uuid.New()),
			UserID:   doctor.ID,
			Verified: true,
		}
		router := buildRouter(t, doctor, record)

		testutil.When(t, "logging in", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/session/login",
				map[string]string{"username": "alice", "password": "pw"})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the doctor reaches the active section", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)

				assert.Eventually(t, func() bool {
					decision := testutil.DoRequest(router,
						testutil.NewRequest(t, http.MethodGet, "/v1/session/decision"))
					body := testutil.UnmarshalResponse[gate.EntryDecision](t, decision)
					return body.Section == gate.SectionDoctorActive
				}, time.Second, 5*time.Millisecond)
			})
		})
	})
}
