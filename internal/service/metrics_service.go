package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/achievement-api/internal/models"
)

// MetricsSnapshot is a lightweight summary of workflow metrics for API consumption.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	SubmissionsTotal         uint64    `json:"submissionsTotal"`
	DecisionsTotal           uint64    `json:"decisionsTotal"`
	PolicyOverridesTotal     uint64    `json:"policyOverridesTotal"`
	LedgerRetriesTotal       uint64    `json:"ledgerRetriesTotal"`
	IntegrityViolationsTotal uint64    `json:"integrityViolationsTotal"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	scoringDuration   *prometheus.HistogramVec
	decisions         *prometheus.CounterVec
	ledgerRetries     prometheus.Counter
	ledgerContention  prometheus.Counter
	integrityFailures prometheus.Counter
	notifications     *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	submissionCount      uint64
	decisionCount        uint64
	overrideCount        uint64
	ledgerRetryCount     uint64
	integrityCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "achievement_submissions_total",
		Help: "Submissions by outcome",
	}, []string{"outcome"})

	scoringDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "achievement_scoring_duration_seconds",
		Help:    "Duration of evidence scoring by resulting signal status",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "achievement_decisions_total",
		Help: "Committed decisions",
	}, []string{"decision", "override"})

	ledgerRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "achievement_ledger_append_retries_total",
		Help: "Ledger appends retried after the tail moved",
	})

	ledgerContention := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "achievement_ledger_contention_total",
		Help: "Ledger appends abandoned after exhausting retries",
	})

	integrityFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "achievement_ledger_integrity_violations_total",
		Help: "Ledger records that failed verification",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "achievement_notifications_total",
		Help: "Decision notifications by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, submissions, scoringDuration, decisions, ledgerRetries,
		ledgerContention, integrityFailures, notifications, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		submissions:       submissions,
		scoringDuration:   scoringDuration,
		decisions:         decisions,
		ledgerRetries:     ledgerRetries,
		ledgerContention:  ledgerContention,
		integrityFailures: integrityFailures,
		notifications:     notifications,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordSubmission counts a submit attempt by outcome (created, duplicate, invalid, error).
func (m *MetricsService) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if outcome == "created" {
		atomic.AddUint64(&m.submissionCount, 1)
	}
}

// ObserveScoring records scoring latency for the resulting signal status.
func (m *MetricsService) ObserveScoring(status models.SignalStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.scoringDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// RecordDecision counts a committed decision.
func (m *MetricsService) RecordDecision(decision models.Decision, override bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(decision), fmt.Sprintf("%t", override)).Inc()
	atomic.AddUint64(&m.decisionCount, 1)
	if override {
		atomic.AddUint64(&m.overrideCount, 1)
	}
}

// RecordLedgerRetry counts an append that lost the race for the tail.
func (m *MetricsService) RecordLedgerRetry() {
	if m == nil {
		return
	}
	m.ledgerRetries.Inc()
	atomic.AddUint64(&m.ledgerRetryCount, 1)
}

// RecordLedgerContention counts an append abandoned after its retry budget.
func (m *MetricsService) RecordLedgerContention() {
	if m == nil {
		return
	}
	m.ledgerContention.Inc()
}

// RecordIntegrityViolation counts a ledger record that failed verification.
func (m *MetricsService) RecordIntegrityViolation() {
	if m == nil {
		return
	}
	m.integrityFailures.Inc()
	atomic.AddUint64(&m.integrityCount, 1)
}

// RecordNotification counts a notification delivery result (sent, failed, dropped).
func (m *MetricsService) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// Snapshot returns aggregated metrics suitable for admin endpoints.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SubmissionsTotal:         atomic.LoadUint64(&m.submissionCount),
		DecisionsTotal:           atomic.LoadUint64(&m.decisionCount),
		PolicyOverridesTotal:     atomic.LoadUint64(&m.overrideCount),
		LedgerRetriesTotal:       atomic.LoadUint64(&m.ledgerRetryCount),
		IntegrityViolationsTotal: atomic.LoadUint64(&m.integrityCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
