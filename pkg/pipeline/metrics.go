package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kittclouds/skillscan/pkg/matcher"
)

// pipelineMetrics holds Prometheus metrics for extraction calls.
type pipelineMetrics struct {
	matches     *prometheus.CounterVec // By strategy
	unavailable *prometheus.CounterVec // By strategy
	duration    prometheus.Histogram
}

// newPipelineMetrics creates and registers the metrics with reg. A nil
// registerer disables metrics.
func newPipelineMetrics(reg prometheus.Registerer) (*pipelineMetrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}

	m := &pipelineMetrics{
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillscan",
			Name:      "matches_total",
			Help:      "Total number of competence matches emitted",
		}, []string{"strategy"}),

		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skillscan",
			Name:      "pass_unavailable_total",
			Help:      "Total number of match passes that could not run",
		}, []string{"strategy"}),

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skillscan",
			Name:      "extraction_duration_seconds",
			Help:      "Extraction call duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	var err error
	if m.matches, err = register(reg, m.matches); err != nil {
		return nil, err
	}
	if m.unavailable, err = register(reg, m.unavailable); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing a collector registered earlier under the
// same descriptor by another pipeline.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *pipelineMetrics) recordMatches(matches []CompetenceMatch) {
	if m == nil {
		return
	}
	for _, match := range matches {
		m.matches.WithLabelValues(string(match.SourceStrategy)).Inc()
	}
}

func (m *pipelineMetrics) recordUnavailable(name matcher.Name) {
	if m == nil {
		return
	}
	m.unavailable.WithLabelValues(string(name)).Inc()
}

func (m *pipelineMetrics) recordDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
