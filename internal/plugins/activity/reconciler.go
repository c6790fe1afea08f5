package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
)

// sweepTimeout bounds one reconcile sweep.
const sweepTimeout = 30 * time.Second

// ReconcilerStats is a snapshot of the reconciler's counters.
type ReconcilerStats struct {
	SweepsTotal      uint64
	SweepErrorsTotal uint64
	RevokedTotal     uint64
	LastSweepAt      time.Time
}

// Reconciler periodically revokes monitors whose backing session is gone
// from the session store. Auth changes normally arrive over pub/sub; the
// sweep catches messages lost while Redis was unreachable and sessions
// that expired in Redis on their own.
type Reconciler struct {
	registry *inactivity.Registry
	store    SessionStore
	cron     *cron.Cron

	sweeps      atomic.Uint64
	sweepErrors atomic.Uint64
	revoked     atomic.Uint64
	lastSweepNs atomic.Int64
}

// NewReconciler creates a reconciler that sweeps on the given cron schedule.
// Standard five-field specs and descriptors such as "@every 1m" are accepted.
func NewReconciler(reg *inactivity.Registry, store SessionStore, schedule string) (*Reconciler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Reconciler{
		registry: reg,
		store:    store,
		cron:     cron.New(cron.WithParser(parser)),
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("parsing reconcile schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins running sweeps in the background.
func (r *Reconciler) Start() { r.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire.
func (r *Reconciler) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (r *Reconciler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if n, err := r.Sweep(ctx); err != nil {
		slog.Warn("session reconcile failed", slog.Int("revoked", n), slog.Any("error", err))
	} else if n > 0 {
		slog.Info("session reconcile revoked monitors", slog.Int("revoked", n))
	}
}

// Sweep checks every monitored session against the store and revokes the
// monitors of sessions that no longer exist. It stops at the first store
// error so an outage never revokes healthy sessions.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	n, err := r.sweep(ctx)
	r.sweeps.Add(1)
	if err != nil {
		r.sweepErrors.Add(1)
	}
	r.revoked.Add(uint64(n))
	r.lastSweepNs.Store(time.Now().UTC().UnixNano())
	return n, err
}

func (r *Reconciler) sweep(ctx context.Context) (int, error) {
	revoked := 0
	for _, token := range r.registry.Tokens() {
		exists, err := r.store.SessionExists(ctx, token)
		if err != nil {
			return revoked, err
		}
		if !exists && r.registry.Revoke(token) {
			revoked++
		}
	}
	return revoked, nil
}

// StatsSnapshot returns the reconciler's counters.
func (r *Reconciler) StatsSnapshot() ReconcilerStats {
	if r == nil {
		return ReconcilerStats{}
	}
	s := ReconcilerStats{
		SweepsTotal:      r.sweeps.Load(),
		SweepErrorsTotal: r.sweepErrors.Load(),
		RevokedTotal:     r.revoked.Load(),
	}
	if ns := r.lastSweepNs.Load(); ns > 0 {
		s.LastSweepAt = time.Unix(0, ns).UTC()
	}
	return s
}
