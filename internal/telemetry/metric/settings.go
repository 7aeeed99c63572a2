package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settings holds the settings engine metrics.
//
// All methods are safe on a nil *Settings so the engine can run without
// metrics.
type Settings struct {
	Passes       *prometheus.CounterVec
	Entries      *prometheus.CounterVec
	Commits      *prometheus.CounterVec
	PassDuration *prometheus.HistogramVec
}

// NewSettings creates the settings metrics and registers them with reg
// when reg is not nil.
func NewSettings(reg prometheus.Registerer) *Settings {
	s := &Settings{
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "load_passes_total",
			Help:      "Settings load passes by mode and result.",
		}, []string{"mode", "result"}),
		Entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "load_entries_total",
			Help:      "Stored entries seen by load passes, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commits_total",
			Help:      "Handler commits by result.",
		}, []string{"result"}),
		PassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of settings load passes.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"mode"}),
	}

	if reg != nil {
		reg.MustRegister(s.Passes, s.Entries, s.Commits, s.PassDuration)
	}
	return s
}

// ObservePass records a finished load pass.
func (s *Settings) ObservePass(mode string, elapsed time.Duration, err error) {
	if s == nil {
		return
	}
	s.Passes.WithLabelValues(mode, result(err)).Inc()
	s.PassDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// EntryDispatched counts an entry handed to a handler or callback.
func (s *Settings) EntryDispatched(mode string) {
	if s == nil {
		return
	}
	s.Entries.WithLabelValues(mode, "dispatched").Inc()
}

// EntryOrphaned counts an entry no handler matched.
func (s *Settings) EntryOrphaned(mode string) {
	if s == nil {
		return
	}
	s.Entries.WithLabelValues(mode, "orphaned").Inc()
}

// EntryFailed counts an entry whose set or callback returned an error.
func (s *Settings) EntryFailed(mode string) {
	if s == nil {
		return
	}
	s.Entries.WithLabelValues(mode, "failed").Inc()
}

// Committed counts a handler commit.
func (s *Settings) Committed(err error) {
	if s == nil {
		return
	}
	s.Commits.WithLabelValues(result(err)).Inc()
}
