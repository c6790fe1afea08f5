// Package activity connects browser sessions to the inactivity monitor. It
// opens a monitor when a user signs in, feeds it the user's requests as
// activity, serves the warning and countdown shown before a forced logout,
// and keeps monitors consistent with the session store.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package activity

import (
	"context"
	"time"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// EventSessionTimeout is the security event recorded for inactivity logouts.
const EventSessionTimeout = "session.timeout"

// SessionStore is the part of the auth service the monitors depend on.
type SessionStore interface {
	DestroySession(ctx context.Context, token string) error
	TouchSession(ctx context.Context, token string, ttl time.Duration) error
	SessionExists(ctx context.Context, token string) (bool, error)
	Subscribe(fn func(auth.Change)) (unsubscribe func(), err error)
}

// StatusResponse is the JSON body of GET /session/status.
type StatusResponse struct {
	State            string     `json:"state"`
	Mode             string     `json:"mode,omitempty"`
	WarningVisible   bool       `json:"warning_visible"`
	RemainingSeconds int        `json:"remaining_seconds"`
	Countdown        string     `json:"countdown,omitempty"`
	WarningAt        *time.Time `json:"warning_at,omitempty"`
	LogoutAt         *time.Time `json:"logout_at,omitempty"`
	Redirect         string     `json:"redirect,omitempty"`
}

func newStatusResponse(st inactivity.Status) StatusResponse {
	resp := StatusResponse{
		State:            st.State.String(),
		Mode:             st.Mode.String(),
		WarningVisible:   st.WarningVisible,
		RemainingSeconds: int(st.Remaining / time.Second),
	}
	if !st.WarningAt.IsZero() {
		at := st.WarningAt.UTC()
		resp.WarningAt = &at
	}
	if !st.LogoutAt.IsZero() {
		at := st.LogoutAt.UTC()
		resp.LogoutAt = &at
	}
	if st.WarningVisible {
		resp.Countdown = inactivity.FormatRemaining(st.Remaining)
	}
	return resp
}

// endedRedirect returns where a browser whose session ended for reason
// should be sent, or "" if no explanation is needed.
func endedRedirect(reason inactivity.EndReason) string {
	switch reason {
	case inactivity.EndTimeout:
		return "/login?reason=inactivity"
	case inactivity.EndRevoked:
		return "/login?reason=revoked"
	default:
		return ""
	}
}
