package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	AttemptOutcomeCommitted    = "committed"
	AttemptOutcomeRetried      = "retried"
	AttemptOutcomeBusinessRule = "business_rule"
	AttemptOutcomeFailed       = "failed"
)

// Config sets constant labels on every collector.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics groups the collectors for transactional retries and patient code issuance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts         *prometheus.CounterVec
	retryReasons     *prometheus.CounterVec
	backoff          prometheus.Histogram
	codesIssued      prometheus.Counter
	capacityExceeded prometheus.Counter
	codesIssuedToday prometheus.Gauge
}

// New registers the collectors on registerer (prometheus.DefaultRegisterer when nil).
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "dentizy"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dentizy_transaction_attempts_total",
			Help:        "Transaction attempts by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		retryReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dentizy_transaction_retries_total",
			Help:        "Transaction retries by transient failure reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		backoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "dentizy_transaction_backoff_seconds",
			Help:        "Delay applied before retrying a transaction.",
			Buckets:     []float64{0.1, 0.2, 0.4, 0.8, 1},
			ConstLabels: constLabels,
		}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "dentizy_patient_codes_issued_total",
			Help:        "Patient codes committed.",
			ConstLabels: constLabels,
		}),
		capacityExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "dentizy_patient_code_capacity_exceeded_total",
			Help:        "Code requests rejected because the daily ceiling was reached.",
			ConstLabels: constLabels,
		}),
		codesIssuedToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "dentizy_patient_codes_issued_today",
			Help:        "Highest sequence committed for the current date prefix.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.attempts,
		m.retryReasons,
		m.backoff,
		m.codesIssued,
		m.capacityExceeded,
		m.codesIssuedToday,
	)
	return m
}

func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRetry(reason string, delay time.Duration) {
	if m == nil {
		return
	}
	m.retryReasons.WithLabelValues(reason).Inc()
	m.backoff.Observe(delay.Seconds())
}

// ObserveCodeIssued records a committed code and its sequence.
func (m *Metrics) ObserveCodeIssued(sequence int) {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
	m.codesIssuedToday.Set(float64(sequence))
}

func (m *Metrics) ObserveCapacityExceeded() {
	if m == nil {
		return
	}
	m.capacityExceeded.Inc()
}

// AttemptsCounter exposes the attempts counter for outcome, for tests and debugging.
func (m *Metrics) AttemptsCounter(outcome string) prometheus.Counter {
	return m.attempts.WithLabelValues(outcome)
}

// CodesIssuedCounter exposes the issued codes counter, for tests and debugging.
func (m *Metrics) CodesIssuedCounter() prometheus.Counter {
	return m.codesIssued
}
