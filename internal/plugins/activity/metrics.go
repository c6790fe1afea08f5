package activity

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/keyxmakerx/crescendo/internal/inactivity"
)

// Metrics exports inactivity monitor activity to Prometheus.
type Metrics struct {
	events *prometheus.CounterVec
	ended  *prometheus.CounterVec
	live   *liveSessionsCollector
}

// NewMetrics creates the session metrics and subscribes them to reg.
func NewMetrics(reg *inactivity.Registry, rec *Reconciler) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crescendo_session_events_total",
			Help: "Inactivity monitor transitions by kind.",
		}, []string{"kind"}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crescendo_sessions_ended_total",
			Help: "Ended browser sessions by reason.",
		}, []string{"reason"}),
		live: newLiveSessionsCollector(reg, rec),
	}
	reg.Observe(m.observe)
	return m
}

// Register adds every session metric to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.events, m.ended, m.live} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(ev inactivity.Event) {
	m.events.WithLabelValues(ev.Kind.String()).Inc()
	if ev.Kind == inactivity.EventEnded {
		m.ended.WithLabelValues(ev.Reason.String()).Inc()
	}
}

// liveSessionsCollector reports monitor and reconciler state at scrape time.
type liveSessionsCollector struct {
	registry   *inactivity.Registry
	reconciler *Reconciler

	monitorsDesc    *prometheus.Desc
	sweepsDesc      *prometheus.Desc
	sweepErrorsDesc *prometheus.Desc
	reapedDesc      *prometheus.Desc
	lastSweepDesc   *prometheus.Desc
}

func newLiveSessionsCollector(reg *inactivity.Registry, rec *Reconciler) *liveSessionsCollector {
	return &liveSessionsCollector{
		registry:   reg,
		reconciler: rec,
		monitorsDesc: prometheus.NewDesc(
			"crescendo_session_monitors",
			"Monitored browser sessions by state.",
			[]string{"state"},
			nil,
		),
		sweepsDesc: prometheus.NewDesc(
			"crescendo_session_reconcile_sweeps_total",
			"Total number of reconcile sweeps.",
			nil,
			nil,
		),
		sweepErrorsDesc: prometheus.NewDesc(
			"crescendo_session_reconcile_errors_total",
			"Total number of reconcile sweeps that failed.",
			nil,
			nil,
		),
		reapedDesc: prometheus.NewDesc(
			"crescendo_session_reconcile_revoked_total",
			"Total number of monitors revoked because their session was gone.",
			nil,
			nil,
		),
		lastSweepDesc: prometheus.NewDesc(
			"crescendo_session_reconcile_last_sweep_timestamp",
			"Unix timestamp of the last reconcile sweep.",
			nil,
			nil,
		),
	}
}

func (c *liveSessionsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.monitorsDesc
	ch <- c.sweepsDesc
	ch <- c.sweepErrorsDesc
	ch <- c.reapedDesc
	ch <- c.lastSweepDesc
}

func (c *liveSessionsCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[inactivity.State]int{inactivity.StateActive: 0, inactivity.StateWarningShown: 0}
	for _, token := range c.registry.Tokens() {
		if st, ok := c.registry.Status(token); ok {
			if _, tracked := counts[st.State]; tracked {
				counts[st.State]++
			}
		}
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.monitorsDesc, prometheus.GaugeValue, float64(n), state.String())
	}

	if c.reconciler == nil {
		return
	}
	s := c.reconciler.StatsSnapshot()
	ch <- prometheus.MustNewConstMetric(c.sweepsDesc, prometheus.CounterValue, float64(s.SweepsTotal))
	ch <- prometheus.MustNewConstMetric(c.sweepErrorsDesc, prometheus.CounterValue, float64(s.SweepErrorsTotal))
	ch <- prometheus.MustNewConstMetric(c.reapedDesc, prometheus.CounterValue, float64(s.RevokedTotal))
	if !s.LastSweepAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastSweepDesc, prometheus.GaugeValue, float64(s.LastSweepAt.UTC().Unix()))
	}
}
