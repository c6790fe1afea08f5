// Package inactivity implements the session inactivity monitor: a two-stage
// timer that shows a warning shortly before an idle browser session is
// logged out, and forces the logout if the user does nothing.
//
// A Monitor tracks one authenticated session. Qualifying activity is
// debounced and re-arms both timers; an explicit extend does the same from
// the current time. All transitions run under the monitor's mutex, and timer
// callbacks carry the arm epoch they were scheduled for so a callback that
// lost a race with a re-arm is discarded.
package inactivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Default timings.
const (
	StandardTimeout  = 30 * time.Minute
	ExtendedTimeout  = 7 * 24 * time.Hour
	WarningLeadTime  = 5 * time.Minute
	ActivityDebounce = time.Second
)

// ErrNoSession is returned by Extend when there is no live session to extend.
var ErrNoSession = errors.New("inactivity: no active session")

// State is the monitor's position in the session lifecycle.
type State int

const (
	StateNoSession State = iota
	StateActive
	StateWarningShown
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateActive:
		return "active"
	case StateWarningShown:
		return "warning"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its string form in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// live reports whether a session is being monitored.
func (s State) live() bool {
	return s == StateActive || s == StateWarningShown
}

// Mode selects the inactivity timeout.
type Mode int

const (
	// ModeStandard is an ordinary login.
	ModeStandard Mode = iota
	// ModeExtended is a "remember me" login.
	ModeExtended
)

// ModeFor returns the mode for a login with the given remember-me choice.
func ModeFor(remember bool) Mode {
	if remember {
		return ModeExtended
	}
	return ModeStandard
}

func (m Mode) String() string {
	if m == ModeExtended {
		return "extended"
	}
	return "standard"
}

// MarshalText renders the mode as its string form in JSON.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// EndReason records why a session ended.
type EndReason int

const (
	EndNone EndReason = iota
	// EndLogout is an explicit logout by the user.
	EndLogout
	// EndTimeout is a forced logout after the inactivity timeout.
	EndTimeout
	// EndRevoked means the identity store reported the principal is no
	// longer authenticated.
	EndRevoked
)

func (r EndReason) String() string {
	switch r {
	case EndLogout:
		return "logout"
	case EndTimeout:
		return "timeout"
	case EndRevoked:
		return "revoked"
	default:
		return ""
	}
}

// MarshalText renders the reason as its string form in JSON.
func (r EndReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Config holds the monitor timings. Zero fields take the defaults.
type Config struct {
	StandardTimeout time.Duration
	ExtendedTimeout time.Duration
	WarningLead     time.Duration
	Debounce        time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		StandardTimeout: StandardTimeout,
		ExtendedTimeout: ExtendedTimeout,
		WarningLead:     WarningLeadTime,
		Debounce:        ActivityDebounce,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StandardTimeout <= 0 {
		c.StandardTimeout = d.StandardTimeout
	}
	if c.ExtendedTimeout <= 0 {
		c.ExtendedTimeout = d.ExtendedTimeout
	}
	if c.WarningLead <= 0 {
		c.WarningLead = d.WarningLead
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	return c
}

// Timeout returns the inactivity timeout for a mode.
func (c Config) Timeout(m Mode) time.Duration {
	if m == ModeExtended {
		return c.ExtendedTimeout
	}
	return c.StandardTimeout
}

// warningDelay is how long after the last activity the warning fires.
func (c Config) warningDelay(timeout time.Duration) time.Duration {
	if c.WarningLead >= timeout {
		return 0
	}
	return timeout - c.WarningLead
}

// Principal identifies the authenticated user behind a session.
type Principal struct {
	ID    string
	Name  string
	Token string
}

// Terminator ends the backing session in the identity store.
type Terminator interface {
	TerminateSession(ctx context.Context, token string) error
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(ctx context.Context, token string) error

// TerminateSession calls f.
func (f TerminatorFunc) TerminateSession(ctx context.Context, token string) error {
	return f(ctx, token)
}

// EventKind classifies a monitor transition.
type EventKind int

const (
	EventStarted EventKind = iota
	EventRearmed
	EventWarning
	EventExtended
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventRearmed:
		return "rearmed"
	case EventWarning:
		return "warning"
	case EventExtended:
		return "extended"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event describes a transition. Observers receive events after the
// monitor's lock has been released.
type Event struct {
	Kind      EventKind
	Principal Principal
	Mode      Mode
	Timeout   time.Duration
	Reason    EndReason
	At        time.Time
	LogoutAt  time.Time
}

// Observer receives monitor events.
type Observer func(Event)

// Status is a point-in-time view of a monitor.
type Status struct {
	State          State
	Mode           Mode
	Principal      Principal
	Timeout        time.Duration
	LastActivityAt time.Time
	WarningAt      time.Time
	LogoutAt       time.Time
	Remaining      time.Duration
	WarningVisible bool
	LastEnd        EndReason
}

// Monitor is the inactivity state machine for one browser session.
type Monitor struct {
	cfg       Config
	sched     Scheduler
	term      Terminator
	observers []Observer
	debounce  *Debouncer

	mu             sync.Mutex
	state          State
	principal      Principal
	mode           Mode
	timeout        time.Duration
	lastActivityAt time.Time
	warningAt      time.Time
	logoutAt       time.Time
	warningTimer   Timer
	logoutTimer    Timer
	epoch          uint64
	ending         bool
	revokePending  bool
	lastEnd        EndReason
}

// NewMonitor creates an idle monitor in StateNoSession.
func NewMonitor(cfg Config, sched Scheduler, term Terminator, observers ...Observer) *Monitor {
	if term == nil {
		term = TerminatorFunc(func(context.Context, string) error { return nil })
	}
	m := &Monitor{
		cfg:       cfg.withDefaults(),
		sched:     sched,
		term:      term,
		observers: observers,
	}
	m.debounce = NewDebouncer(sched, m.cfg.Debounce, m.rearm)
	return m
}

// Start begins monitoring a freshly authenticated session. Anything left
// over from a previous session is cancelled first.
func (m *Monitor) Start(p Principal, mode Mode) {
	m.debounce.Cancel()

	m.mu.Lock()
	m.cancelTimersLocked()
	m.principal = p
	m.mode = mode
	m.timeout = m.cfg.Timeout(mode)
	m.ending = false
	m.revokePending = false
	m.lastEnd = EndNone
	m.state = StateActive
	m.armLocked(m.sched.Now())
	ev := m.eventLocked(EventStarted)
	m.mu.Unlock()

	m.emit(ev)
}

// RecordActivity registers qualifying user activity. Bursts are collapsed
// and the timers re-armed once the debounce window is quiet. Calling it
// without a session is a no-op.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	ok := m.state.live() && !m.ending
	m.mu.Unlock()
	if !ok {
		return
	}
	m.debounce.Trigger()
}

// rearm is the debounced activity callback. Activity while the warning is
// visible silently returns the session to Active.
func (m *Monitor) rearm(last time.Time) {
	m.mu.Lock()
	if !m.state.live() || m.ending || !last.After(m.lastActivityAt) {
		m.mu.Unlock()
		return
	}
	m.cancelTimersLocked()
	m.state = StateActive
	m.armLocked(last)
	ev := m.eventLocked(EventRearmed)
	m.mu.Unlock()

	m.emit(ev)
}

// Extend restarts the full timeout window from now and hides the warning.
// It returns ErrNoSession if the session already ended.
func (m *Monitor) Extend() error {
	m.mu.Lock()
	if !m.state.live() || m.ending {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.cancelTimersLocked()
	m.state = StateActive
	m.armLocked(m.sched.Now())
	ev := m.eventLocked(EventExtended)
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// Logout ends the session explicitly. The backing session is terminated
// first; if that fails the monitor is left untouched so the caller can
// retry, unless the principal was revoked while the call was in flight, in
// which case the session ends as revoked. Calling Logout with no live
// session, or while another Logout is in flight, returns nil without
// terminating again.
func (m *Monitor) Logout(ctx context.Context) error {
	m.mu.Lock()
	if !m.state.live() || m.ending {
		m.mu.Unlock()
		return nil
	}
	m.ending = true
	epoch := m.epoch
	token := m.principal.Token
	m.mu.Unlock()

	err := m.term.TerminateSession(ctx, token)

	m.mu.Lock()
	if epoch != m.epoch {
		// The session timed out, was revoked or restarted meanwhile.
		m.mu.Unlock()
		return nil
	}
	m.ending = false
	if err != nil {
		if !m.revokePending {
			m.mu.Unlock()
			return err
		}
		// The identity store already dropped the principal.
		ev := m.endLocked(EndRevoked)
		m.mu.Unlock()
		m.emit(ev)
		return nil
	}
	ev := m.endLocked(EndLogout)
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// Revoke drops the session because the identity store no longer considers
// the principal authenticated. The backing session is not terminated again.
// A logout in flight is left to finish on its own; if it fails, the session
// ends as revoked then. Reports whether the session was ended by this call.
func (m *Monitor) Revoke() bool {
	m.mu.Lock()
	if !m.state.live() {
		m.mu.Unlock()
		return false
	}
	if m.ending {
		m.revokePending = true
		m.mu.Unlock()
		return false
	}
	ev := m.endLocked(EndRevoked)
	m.mu.Unlock()

	m.emit(ev)
	return true
}

// Stop cancels all timers without ending the backing session or notifying
// observers. Used at shutdown.
func (m *Monitor) Stop() {
	m.debounce.Cancel()

	m.mu.Lock()
	m.cancelTimersLocked()
	m.epoch++
	m.state = StateNoSession
	m.ending = false
	m.revokePending = false
	m.mu.Unlock()
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:          m.state,
		Mode:           m.mode,
		Principal:      m.principal,
		Timeout:        m.timeout,
		LastActivityAt: m.lastActivityAt,
		WarningAt:      m.warningAt,
		LogoutAt:       m.logoutAt,
		WarningVisible: m.state == StateWarningShown,
		LastEnd:        m.lastEnd,
	}
	if m.state.live() {
		if rem := m.logoutAt.Sub(m.sched.Now()); rem > 0 {
			st.Remaining = rem
		}
	}
	return st
}

func (m *Monitor) onWarning(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.warningTimer = nil
	m.state = StateWarningShown
	ev := m.eventLocked(EventWarning)
	m.mu.Unlock()

	m.emit(ev)
}

// onTimeout always ends the session locally. The backing session is
// terminated best-effort, unless an explicit logout is already doing so.
func (m *Monitor) onTimeout(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.state.live() {
		m.mu.Unlock()
		return
	}
	m.logoutTimer = nil
	inFlight := m.ending
	token := m.principal.Token
	ev := m.endLocked(EndTimeout)
	m.mu.Unlock()

	m.emit(ev)

	if inFlight {
		return
	}
	if err := m.term.TerminateSession(context.Background(), token); err != nil {
		slog.Warn("terminating timed out session failed",
			slog.String("user_id", ev.Principal.ID),
			slog.Any("error", err),
		)
	}
}

// armLocked schedules the warning and logout timers relative to base.
func (m *Monitor) armLocked(base time.Time) {
	if !m.state.live() {
		return
	}
	now := m.sched.Now()
	m.epoch++
	epoch := m.epoch

	m.lastActivityAt = base
	m.warningAt = base.Add(m.cfg.warningDelay(m.timeout))
	m.logoutAt = base.Add(m.timeout)
	m.warningTimer = m.sched.AfterFunc(m.warningAt.Sub(now), func() { m.onWarning(epoch) })
	m.logoutTimer = m.sched.AfterFunc(m.logoutAt.Sub(now), func() { m.onTimeout(epoch) })
}

func (m *Monitor) cancelTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Stop()
		m.logoutTimer = nil
	}
}

// endLocked moves the monitor through Ended to NoSession and returns the
// event describing it.
func (m *Monitor) endLocked(reason EndReason) Event {
	m.cancelTimersLocked()
	m.debounce.Cancel()
	m.epoch++
	m.ending = false
	m.revokePending = false
	m.lastEnd = reason
	m.state = StateEnded
	ev := m.eventLocked(EventEnded)
	ev.Reason = reason

	m.state = StateNoSession
	m.warningAt = time.Time{}
	m.logoutAt = time.Time{}
	return ev
}

func (m *Monitor) eventLocked(kind EventKind) Event {
	return Event{
		Kind:      kind,
		Principal: m.principal,
		Mode:      m.mode,
		Timeout:   m.timeout,
		At:        m.sched.Now(),
		LogoutAt:  m.logoutAt,
	}
}

func (m *Monitor) emit(ev Event) {
	for _, o := range m.observers {
		o(ev)
	}
}
