package eduAuth

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Side-effect kinds counted when a best-effort call fails.
const (
	sideEffectNotification = "notification"
	sideEffectAudit        = "audit"
	sideEffectAuditDropped = "audit_dropped"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	operations         *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	hashDuration       prometheus.Histogram
}

// NewMetrics builds the collectors and registers them on reg. A nil reg
// keeps the collectors private, which tests use to read values directly.
// Collectors already registered by an earlier engine are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eduauth_operations_total",
				Help: "Authentication operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		sideEffectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eduauth_side_effect_failures_total",
				Help: "Failed best-effort notification and audit calls.",
			},
			[]string{"kind"},
		),
		hashDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eduauth_password_hash_seconds",
				Help:    "Time spent in password hashing and verification.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.operations, err = registerCollector(reg, m.operations); err != nil {
		return nil, err
	}
	if m.sideEffectFailures, err = registerCollector(reg, m.sideEffectFailures); err != nil {
		return nil, err
	}
	if m.hashDuration, err = registerCollector(reg, m.hashDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
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

func (m *Metrics) observeOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcomeOf(err)).Inc()
}

func (m *Metrics) sideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeHash(d time.Duration) {
	if m == nil {
		return
	}
	m.hashDuration.Observe(d.Seconds())
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	if code := CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return outcomeError
}
