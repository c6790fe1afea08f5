package activity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
	"github.com/keyxmakerx/crescendo/internal/plugins/auth"
)

// touchTimeout bounds the Redis call that slides a session's TTL.
const touchTimeout = 2 * time.Second

// Tracker drives the inactivity registry from authentication events. It
// implements auth.SessionLifecycle, follows auth changes published by every
// server instance, and keeps the session store's TTL in step with the
// monitor's deadline.
type Tracker struct {
	registry *inactivity.Registry
	store    SessionStore
	security auth.SecurityLogger

	mu          sync.Mutex
	unsubscribe func()
}

// NewTracker creates a tracker and registers it as an observer of reg.
func NewTracker(reg *inactivity.Registry, store SessionStore) *Tracker {
	t := &Tracker{registry: reg, store: store}
	reg.Observe(t.observe)
	return t
}

// SetSecurityLogger wires the security event log for timeouts.
func (t *Tracker) SetSecurityLogger(l auth.SecurityLogger) { t.security = l }

// SessionStarted opens a monitor for a fresh login or signup.
func (t *Tracker) SessionStarted(_ echo.Context, token string, user *auth.User, remember bool) {
	t.registry.Open(token, inactivity.Principal{ID: user.ID, Name: user.DisplayName}, inactivity.ModeFor(remember))
}

// EndSession logs the session out through its monitor. Sessions without a
// monitor (for example right after a restart) are destroyed directly.
func (t *Tracker) EndSession(ctx context.Context, token string) error {
	err := t.registry.Logout(ctx, token)
	if errors.Is(err, inactivity.ErrNoSession) {
		return t.store.DestroySession(ctx, token)
	}
	return err
}

// Restore makes sure an authenticated session has a monitor. Monitors live
// in memory, so sessions that survived a restart get a fresh one. Reports
// whether a monitor was created.
func (t *Tracker) Restore(token string, session *auth.Session, remember bool) bool {
	p := inactivity.Principal{ID: session.UserID, Name: session.Name}
	_, created := t.registry.Ensure(token, p, inactivity.ModeFor(session.Remember || remember))
	if created {
		slog.Info("session monitor restored",
			slog.String("user_id", session.UserID),
			slog.Bool("remember", session.Remember || remember),
		)
	}
	return created
}

// Start subscribes to auth changes. Sessions destroyed elsewhere (another
// instance, an admin, a password change) are revoked here.
func (t *Tracker) Start() error {
	unsubscribe, err := t.store.Subscribe(t.onChange)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.unsubscribe = unsubscribe
	t.mu.Unlock()
	return nil
}

// Stop ends the auth change subscription.
func (t *Tracker) Stop() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (t *Tracker) onChange(change auth.Change) {
	switch change.Kind {
	case auth.ChangeLogout, auth.ChangeRevoked:
		if len(change.Tokens) == 0 {
			t.registry.RevokeUser(change.UserID)
			return
		}
		for _, token := range change.Tokens {
			t.registry.Revoke(token)
		}
	}
}

func (t *Tracker) observe(ev inactivity.Event) {
	userID := ev.Principal.ID
	switch ev.Kind {
	case inactivity.EventStarted:
		slog.Info("session started",
			slog.String("user_id", userID),
			slog.String("mode", ev.Mode.String()),
			slog.Time("logout_at", ev.LogoutAt),
		)
	case inactivity.EventRearmed:
		t.touch(ev)
	case inactivity.EventExtended:
		slog.Info("session extended", slog.String("user_id", userID))
		t.touch(ev)
	case inactivity.EventWarning:
		slog.Info("session warning",
			slog.String("user_id", userID),
			slog.Time("logout_at", ev.LogoutAt),
		)
	case inactivity.EventEnded:
		slog.Info("session ended",
			slog.String("user_id", userID),
			slog.String("reason", ev.Reason.String()),
		)
		if ev.Reason == inactivity.EndTimeout {
			t.logTimeout(ev)
		}
	}
}

// touch slides the store's TTL so the backing session outlives the
// monitor's new deadline.
func (t *Tracker) touch(ev inactivity.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := t.store.TouchSession(ctx, ev.Principal.Token, ev.Timeout); err != nil {
		slog.Warn("failed to refresh session ttl",
			slog.String("user_id", ev.Principal.ID),
			slog.Any("error", err),
		)
	}
}

func (t *Tracker) logTimeout(ev inactivity.Event) {
	if t.security == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	details := map[string]any{"mode": ev.Mode.String(), "timeout_seconds": int(ev.Timeout / time.Second)}
	if err := t.security.LogEvent(ctx, EventSessionTimeout, ev.Principal.ID, "", "", "", details); err != nil {
		slog.Warn("failed to record session timeout", slog.Any("error", err))
	}
}
