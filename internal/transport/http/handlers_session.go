package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"medigate/internal/gate"
	"medigate/internal/identity"
	"medigate/internal/session"
	"medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/httputil"
)

// SessionService is the slice of session.Service the handlers need.
type SessionService interface {
	Login(ctx context.Context, username, password string) (identity.Identity, error)
	Logout(ctx context.Context)
	UpdateIdentity(ctx context.Context, patch identity.Patch) (identity.Identity, error)
	CurrentIdentity() *identity.Identity
	CurrentSnapshot() session.Snapshot
}

// GateService is the slice of gate.Controller the handlers need.
type GateService interface {
	CurrentDecision() gate.EntryDecision
	Refresh()
}

// VerificationCache invalidates a doctor's cached verdict so the next
// decision re-checks the directory.
type VerificationCache interface {
	Invalidate(userID domain.UserID)
}

// Handler delegates requests to the session, gate, and verification services.
type Handler struct {
	sessions SessionService
	gates    GateService
	verifier VerificationCache
}

func NewHandler(sessions SessionService, gates GateService, verifier VerificationCache) *Handler {
	return &Handler{sessions: sessions, gates: gates, verifier: verifier}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Identity identity.Identity `json:"identity"`
	// Warning is set when the session is live but could not be persisted.
	Warning string `json:"warning,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "username and password are required"))
		return
	}

	ident, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// A storage failure after successful authentication still leaves the
		// session live; tell the caller instead of failing the login.
		if dErrors.HasCode(err, dErrors.CodeStorage) {
			httputil.WriteJSON(w, http.StatusOK, loginResponse{
				Identity: ident,
				Warning:  string(dErrors.CodeStorage),
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Identity: ident})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	Phase    session.Phase      `json:"phase"`
	Identity *identity.Identity `json:"identity,omitempty"`
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	snap := h.sessions.CurrentSnapshot()
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{
		Phase:    snap.Phase,
		Identity: snap.Identity,
	})
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.gates.CurrentDecision())
}

func (h *Handler) handleUpdateIdentity(w http.ResponseWriter, r *http.Request) {
	var patch identity.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	ident, err := h.sessions.UpdateIdentity(r.Context(), patch)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeStorage) {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

// handleVerificationRefresh drops the cached verdict for the current doctor
// and asks the gate to re-decide. The refreshed decision may still be loading
// when the response goes out; the caller polls GET /v1/session/decision.
func (h *Handler) handleVerificationRefresh(w http.ResponseWriter, r *http.Request) {
	ident := h.sessions.CurrentIdentity()
	if ident == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotAuthenticated, "no authenticated session"))
		return
	}
	if ident.Role != domain.RoleDoctor {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "verification applies to doctor accounts only"))
		return
	}
	h.verifier.Invalidate(ident.ID)
	h.gates.Refresh()
	httputil.WriteJSON(w, http.StatusAccepted, h.gates.CurrentDecision())
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
