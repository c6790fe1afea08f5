package activity

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatherValue returns the value of the sample in family name whose labels
// include all of labels.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string)
			for _, l := range m.GetLabel() {
				got[l.GetName()] = l.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue(), true
			}
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func TestMetrics_CountTransitionsAndEnds(t *testing.T) {
	env := newTestEnv(t)
	rec, err := NewReconciler(env.reg, env.store, "@every 1m")
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	require.NoError(t, NewMetrics(env.reg, rec).Register(promReg))

	env.login("tok-a", "u1", false)
	env.login("tok-b", "u2", false)
	env.login("tok-c", "u3", true)
	env.sched.Advance(7 * time.Second)

	v, ok := gatherValue(t, promReg, "crescendo_session_monitors", map[string]string{"state": "warning"})
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, _ = gatherValue(t, promReg, "crescendo_session_monitors", map[string]string{"state": "active"})
	assert.Equal(t, 1.0, v)

	require.NoError(t, env.tracker.EndSession(context.Background(), "tok-b"))
	env.sched.Advance(3 * time.Second)

	v, _ = gatherValue(t, promReg, "crescendo_session_events_total", map[string]string{"kind": "started"})
	assert.Equal(t, 3.0, v)
	v, _ = gatherValue(t, promReg, "crescendo_session_events_total", map[string]string{"kind": "warning"})
	assert.Equal(t, 2.0, v)
	v, _ = gatherValue(t, promReg, "crescendo_sessions_ended_total", map[string]string{"reason": "timeout"})
	assert.Equal(t, 1.0, v)
	v, _ = gatherValue(t, promReg, "crescendo_sessions_ended_total", map[string]string{"reason": "logout"})
	assert.Equal(t, 1.0, v)

	_, err = rec.Sweep(context.Background())
	require.NoError(t, err)
	v, ok = gatherValue(t, promReg, "crescendo_session_reconcile_sweeps_total", nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}
