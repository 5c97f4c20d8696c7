package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Auth outcomes recorded by SecurityMetrics.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeError              = "error"
)

// SecurityMetrics exposes Prometheus collectors for the credential and session core.
// A nil *SecurityMetrics is valid and records nothing.
type SecurityMetrics struct {
	AuthAttempts    *prometheus.CounterVec
	Lockouts        prometheus.Counter
	ActiveSessions  prometheus.Gauge
	ExpiredSessions prometheus.Counter
	AuditEvents     *prometheus.CounterVec
	PublishFailures prometheus.Counter
	DecryptFailures *prometheus.CounterVec
	KDFDuration     prometheus.Histogram
	ThrottledLogins prometheus.Counter
	DegradedEntropy prometheus.Counter
}

// NewSecurityMetrics registers the collectors with reg, reusing collectors that are already registered.
func NewSecurityMetrics(reg prometheus.Registerer) (*SecurityMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns = "vms"

	m := &SecurityMetrics{}
	var err error

	if m.AuthAttempts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "auth", Name: "attempts_total",
		Help: "Authentication attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.Lockouts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "auth", Name: "lockouts_total",
		Help: "Accounts transitioned into the locked state.",
	})); err != nil {
		return nil, err
	}
	if m.ThrottledLogins, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "auth", Name: "throttled_total",
		Help: "Login requests rejected by the per-client rate limiter.",
	})); err != nil {
		return nil, err
	}
	if m.ActiveSessions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "session", Name: "active",
		Help: "Sessions currently held in the registry.",
	})); err != nil {
		return nil, err
	}
	if m.ExpiredSessions, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "session", Name: "expired_total",
		Help: "Sessions evicted after the idle timeout.",
	})); err != nil {
		return nil, err
	}
	if m.AuditEvents, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "audit", Name: "events_total",
		Help: "Security events partitioned by where they were written (stored, fallback).",
	}, []string{"sink"})); err != nil {
		return nil, err
	}
	if m.PublishFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "audit", Name: "publish_failures_total",
		Help: "Security events that could not be streamed to the message bus.",
	})); err != nil {
		return nil, err
	}
	if m.DecryptFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "crypto", Name: "decrypt_failures_total",
		Help: "Decrypt calls rejected, partitioned by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if m.KDFDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "crypto", Name: "kdf_duration_seconds",
		Help:    "Time spent deriving password hashes.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})); err != nil {
		return nil, err
	}
	if m.DegradedEntropy, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "crypto", Name: "degraded_entropy_total",
		Help: "Random reads served by the fallback generator.",
	})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// AuthAttempt counts one authentication outcome.
func (m *SecurityMetrics) AuthAttempt(outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(outcome).Inc()
}

// Lockout counts a transition into the locked state.
func (m *SecurityMetrics) Lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// Throttled counts a rate-limited login request.
func (m *SecurityMetrics) Throttled() {
	if m == nil {
		return
	}
	m.ThrottledLogins.Inc()
}

// SessionsActive sets the active session gauge.
func (m *SecurityMetrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// SessionsExpired adds evicted sessions.
func (m *SecurityMetrics) SessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredSessions.Add(float64(n))
}

// AuditEvent counts an event written to sink.
func (m *SecurityMetrics) AuditEvent(sink string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(sink).Inc()
}

// PublishFailure counts an event the stream rejected.
func (m *SecurityMetrics) PublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// DecryptFailure counts a rejected decrypt call.
func (m *SecurityMetrics) DecryptFailure(reason string) {
	if m == nil {
		return
	}
	m.DecryptFailures.WithLabelValues(reason).Inc()
}

// ObserveKDF records how long a hash derivation took.
func (m *SecurityMetrics) ObserveKDF(d time.Duration) {
	if m == nil {
		return
	}
	m.KDFDuration.Observe(d.Seconds())
}

// EntropyDegraded counts a fallback random read.
func (m *SecurityMetrics) EntropyDegraded() {
	if m == nil {
		return
	}
	m.DegradedEntropy.Inc()
}
