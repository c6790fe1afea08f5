package inactivity

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// endedCacheSize bounds how many end reasons are remembered at once.
const endedCacheSize = 10000

// Registry owns one Monitor per browser session token. It is created once
// at startup and handed to everything that needs to consult or drive the
// monitors.
type Registry struct {
	cfg   Config
	sched Scheduler
	term  Terminator

	mu        sync.Mutex
	monitors  map[string]*Monitor
	observers []Observer

	// ended remembers why recently finished sessions ended, keyed by token,
	// so the next request carrying the stale cookie can be told.
	ended *expirable.LRU[string, EndReason]
}

// NewRegistry creates an empty registry. endedTTL controls how long end
// reasons are kept.
func NewRegistry(cfg Config, sched Scheduler, term Terminator, endedTTL time.Duration) *Registry {
	if endedTTL <= 0 {
		endedTTL = 10 * time.Minute
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		sched:    sched,
		term:     term,
		monitors: make(map[string]*Monitor),
		ended:    expirable.NewLRU[string, EndReason](endedCacheSize, nil, endedTTL),
	}
}

// Config returns the effective timings.
func (r *Registry) Config() Config { return r.cfg }

// Scheduler returns the clock the monitors run on.
func (r *Registry) Scheduler() Scheduler { return r.sched }

// Observe registers an observer for events from every monitor.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Open starts monitoring a freshly authenticated session, replacing any
// monitor already registered for the token.
func (r *Registry) Open(token string, p Principal, mode Mode) *Monitor {
	p.Token = token

	var m *Monitor
	m = NewMonitor(r.cfg, r.sched, r.term, func(ev Event) { r.handle(token, m, ev) })

	r.mu.Lock()
	old := r.monitors[token]
	r.monitors[token] = m
	r.ended.Remove(token)
	r.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	m.Start(p, mode)
	return m
}

// Ensure returns the monitor for token, opening one if none exists. The
// boolean reports whether a new monitor was opened.
func (r *Registry) Ensure(token string, p Principal, mode Mode) (*Monitor, bool) {
	if m, ok := r.Get(token); ok {
		return m, false
	}
	return r.Open(token, p, mode), true
}

// Get returns the monitor for token.
func (r *Registry) Get(token string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[token]
	return m, ok
}

// Status returns the status of the monitor for token.
func (r *Registry) Status(token string) (Status, bool) {
	m, ok := r.Get(token)
	if !ok {
		return Status{}, false
	}
	return m.Status(), true
}

// RecordActivity forwards qualifying activity to the token's monitor.
func (r *Registry) RecordActivity(token string) bool {
	m, ok := r.Get(token)
	if !ok {
		return false
	}
	m.RecordActivity()
	return true
}

// Extend extends the token's session. Returns ErrNoSession if it has none.
func (r *Registry) Extend(token string) error {
	m, ok := r.Get(token)
	if !ok {
		return ErrNoSession
	}
	return m.Extend()
}

// Logout explicitly logs the token's session out. Returns ErrNoSession if
// no monitor is registered for it.
func (r *Registry) Logout(ctx context.Context, token string) error {
	m, ok := r.Get(token)
	if !ok {
		return ErrNoSession
	}
	return m.Logout(ctx)
}

// Revoke ends the token's session without terminating it in the identity
// store. Returns true if a live monitor was found.
func (r *Registry) Revoke(token string) bool {
	m, ok := r.Get(token)
	if !ok {
		return false
	}
	return m.Revoke()
}

// RevokeUser revokes every session belonging to userID and returns how
// many were live.
func (r *Registry) RevokeUser(userID string) int {
	r.mu.Lock()
	var targets []*Monitor
	for _, m := range r.monitors {
		targets = append(targets, m)
	}
	r.mu.Unlock()

	n := 0
	for _, m := range targets {
		if m.Status().Principal.ID != userID {
			continue
		}
		if m.Revoke() {
			n++
		}
	}
	return n
}

// EndReason reports why the token's session recently ended, if known.
func (r *Registry) EndReason(token string) (EndReason, bool) {
	return r.ended.Get(token)
}

// ForgetEnded drops the remembered end reason for token.
func (r *Registry) ForgetEnded(token string) {
	r.ended.Remove(token)
}

// Tokens returns the tokens of all registered monitors.
func (r *Registry) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := make([]string, 0, len(r.monitors))
	for t := range r.monitors {
		tokens = append(tokens, t)
	}
	return tokens
}

// Len returns the number of registered monitors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

// Close stops every monitor. Backing sessions are left alone so they can be
// resumed after a restart.
func (r *Registry) Close() {
	r.mu.Lock()
	monitors := r.monitors
	r.monitors = make(map[string]*Monitor)
	r.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

func (r *Registry) handle(token string, m *Monitor, ev Event) {
	r.mu.Lock()
	if ev.Kind == EventEnded {
		if r.monitors[token] == m {
			delete(r.monitors, token)
		}
		r.ended.Add(token, ev.Reason)
	}
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	for _, o := range observers {
		o(ev)
	}
}
