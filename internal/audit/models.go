package audit

import "time"

// Actions recorded for the session lifecycle.
const (
	ActionLoginSucceeded = "session_login_succeeded"
	ActionLoginFailed    = "session_login_failed"
	ActionLogout         = "session_logout"
	ActionEntryDecision  = "entry_decision"
)

// Event is emitted from domain logic to capture key session actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	Section   string    `json:"section,omitempty"`
	Device    string    `json:"device,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}
