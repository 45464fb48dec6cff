package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveReconcile(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReconcile(OutcomeApplied, 2, 1)
	m.ObserveReconcile(OutcomeConflict, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciles.WithLabelValues(OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciles.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EnrollmentsAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrollmentsRemoved))
}

func TestObserveGrades(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveGrades("batch", 3, map[string]int{"NOT_ENROLLED": 2})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.GradesWritten.WithLabelValues("batch")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GradesSkipped.WithLabelValues("NOT_ENROLLED")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReconcile(OutcomeNoop, 0, 0)
		m.ObserveUnenroll()
		m.ObserveGrades("import", 1, nil)
		m.ObserveTx("reconcile", time.Now())
	})
}
