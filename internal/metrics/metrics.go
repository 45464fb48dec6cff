// Package metrics exposes Prometheus counters for roster and grade writes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconcile outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics tracks roster reconciliation and grade ledger activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Reconciles          *prometheus.CounterVec
	EnrollmentsAdded    prometheus.Counter
	EnrollmentsRemoved  prometheus.Counter
	GradesWritten       *prometheus.CounterVec
	GradesSkipped       *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reconciles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cgms_roster_reconcile_total",
			Help: "Roster reconciliations by outcome",
		}, []string{"outcome"}),
		EnrollmentsAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "cgms_enrollments_added_total",
			Help: "Enrollments inserted by reconciliation",
		}),
		EnrollmentsRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "cgms_enrollments_removed_total",
			Help: "Enrollments removed by reconciliation or unenroll",
		}),
		GradesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cgms_grades_written_total",
			Help: "Grades changed, by write path",
		}, []string{"source"}),
		GradesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cgms_grades_skipped_total",
			Help: "Grade rows not applied, by reason",
		}, []string{"reason"}),
		TransactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cgms_section_tx_duration_seconds",
			Help:    "Duration of section-locked transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// ObserveReconcile records a reconcile outcome and its enrollment deltas.
func (m *Metrics) ObserveReconcile(outcome string, added, removed int) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(outcome).Inc()
	m.EnrollmentsAdded.Add(float64(added))
	m.EnrollmentsRemoved.Add(float64(removed))
}

// ObserveUnenroll records a single removal.
func (m *Metrics) ObserveUnenroll() {
	if m == nil {
		return
	}
	m.EnrollmentsRemoved.Inc()
}

// ObserveGrades records changed and skipped grade rows.
func (m *Metrics) ObserveGrades(source string, written int, skipped map[string]int) {
	if m == nil {
		return
	}
	m.GradesWritten.WithLabelValues(source).Add(float64(written))
	for reason, n := range skipped {
		m.GradesSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveTx records the duration of a section transaction.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTx(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.TransactionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
