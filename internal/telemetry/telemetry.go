// Package telemetry provides OpenTelemetry instrumentation for the
// moderation pipeline. It exports Prometheus metrics and provides
// tracing capabilities.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "modwatch"

// Metrics holds all pipeline Prometheus metrics
type Metrics struct {
	// Scan metrics
	ItemsScanned   prometheus.Counter
	ItemsSkipped   *prometheus.CounterVec
	ItemsEscalated prometheus.Counter
	ClassifyTotal  *prometheus.CounterVec
	ClassifyTime   prometheus.Histogram

	// Rule engine metrics
	RuleMatchDuration prometheus.Histogram
	RulesMatched      prometheus.Counter

	// Scorer metrics
	ScorerDuration *prometheus.HistogramVec
	ScorerFailures *prometheus.CounterVec

	// Review metrics
	ReviewDuration  *prometheus.HistogramVec
	RateLimitedHits *prometheus.CounterVec
	UnreviewedTotal prometheus.Counter

	// Action metrics
	ActionsTaken *prometheus.CounterVec

	// Reconciliation metrics
	OutcomesConfirmed  prometheus.Counter
	OutcomesOverturned prometheus.Counter
	ReportsLeftUp      prometheus.Counter

	// Backpressure metrics
	QueueDepth    prometheus.Gauge
	ActiveWorkers prometheus.Gauge
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider initializes telemetry with Prometheus metrics
func NewProvider() *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(),
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	m := &Metrics{}
	initScanMetrics(m)
	initRuleEngineMetrics(m)
	initScorerMetrics(m)
	initReviewMetrics(m)
	initReconcileMetrics(m)
	initBackpressureMetrics(m)
	return m
}

func initScanMetrics(m *Metrics) {
	m.ItemsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modwatch_items_scanned_total",
		Help: "Total items pulled from the content feed",
	})

	m.ItemsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modwatch_items_skipped_total",
		Help: "Items the pre-filter resolved without review",
	}, []string{"reason"})

	m.ItemsEscalated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modwatch_items_escalated_total",
		Help: "Items handed to a review backend",
	})

	m.ClassifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modwatch_classify_total",
		Help: "Pre-filter decisions by outcome",
	}, []string{"outcome"})

	m.ClassifyTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modwatch_classify_duration_seconds",
		Help:    "Time to run the pre-filter for one item",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	})
}

func initRuleEngineMetrics(m *Metrics) {
	m.RuleMatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modwatch_rule_match_duration_seconds",
		Help:    "Time spent in rule matching (Aho-Corasick)",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	m.RulesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modwatch_rules_matched_total",
		Help: "Total rule entries that matched",
	})
}

func initScorerMetrics(m *Metrics) {
	m.ScorerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modwatch_scorer_duration_seconds",
		Help:    "Latency of one scorer call",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"scorer"})

	m.ScorerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modwatch_scorer_failures_total",
		Help: "Scorer calls that failed or timed out",
	}, []string{"scorer"})
}

func initReviewMetrics(m *Metrics) {
	m.ReviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modwatch_review_duration_seconds",
		Help:    "Latency of one review backend call",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	}, []string{"backend"})

	m.RateLimitedHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modwatch_review_rate_limited_total",
		Help: "Review calls rejected with a rate limit",
	}, []string{"backend"})

	m.UnreviewedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modwatch_review_unreviewed_total",
		Help: "Escalated items left unreviewed after backend exhaustion",
	})

	m.ActionsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modwatch_actions_total",
		Help: "Platform actions taken (none, report, remove)",
	}, []string{"action"})
}

func initReconcileMetrics(m *Metrics) {
	m.OutcomesConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modwatch_outcomes_confirmed_total",
		Help: "Reports confirmed by a moderator remove",
	})

	m.OutcomesOverturned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modwatch_outcomes_overturned_total",
		Help: "Reports overturned by a moderator approve",
	})

	m.ReportsLeftUp = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modwatch_reports_left_up_total",
		Help: "Reports past the decision lag with no moderator action",
	})
}

func initBackpressureMetrics(m *Metrics) {
	m.QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modwatch_queue_depth",
		Help: "Current pending items in the work queue",
	})

	m.ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modwatch_active_workers",
		Help: "Currently active worker goroutines",
	})
}

// ObserveRuleMatch records rule engine metrics for one match pass.
func (p *Provider) ObserveRuleMatch(duration time.Duration, matched int) {
	p.Metrics.RuleMatchDuration.Observe(duration.Seconds())
	p.Metrics.RulesMatched.Add(float64(matched))
}

// ObserveClassify records one pre-filter decision.
func (p *Provider) ObserveClassify(outcome string, duration time.Duration) {
	p.Metrics.ClassifyTotal.WithLabelValues(outcome).Inc()
	p.Metrics.ClassifyTime.Observe(duration.Seconds())
}

// ObserveScorerDuration records the latency of one scorer call.
func (p *Provider) ObserveScorerDuration(scorer string, duration time.Duration) {
	p.Metrics.ScorerDuration.WithLabelValues(scorer).Observe(duration.Seconds())
}

// ScorerFailure records a failed scorer call.
func (p *Provider) ScorerFailure(scorer string) {
	p.Metrics.ScorerFailures.WithLabelValues(scorer).Inc()
}

// ObserveReview records the latency of one review backend call.
func (p *Provider) ObserveReview(backend string, duration time.Duration) {
	p.Metrics.ReviewDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RateLimited records a rate-limited review call.
func (p *Provider) RateLimited(backend string) {
	p.Metrics.RateLimitedHits.WithLabelValues(backend).Inc()
}

// ItemScanned counts one feed item entering the pipeline.
func (p *Provider) ItemScanned() { p.Metrics.ItemsScanned.Inc() }

// ItemSkipped counts a pre-filter skip with its reason class.
func (p *Provider) ItemSkipped(reason string) {
	p.Metrics.ItemsSkipped.WithLabelValues(reason).Inc()
}

// ItemEscalated counts an item handed to review.
func (p *Provider) ItemEscalated() { p.Metrics.ItemsEscalated.Inc() }

// Unreviewed counts an escalated item no backend could review.
func (p *Provider) Unreviewed() { p.Metrics.UnreviewedTotal.Inc() }

// ActionTaken counts one platform action.
func (p *Provider) ActionTaken(action string) {
	p.Metrics.ActionsTaken.WithLabelValues(action).Inc()
}

// OutcomeConfirmed counts a report confirmed during reconciliation.
func (p *Provider) OutcomeConfirmed() { p.Metrics.OutcomesConfirmed.Inc() }

// OutcomeOverturned counts a report overturned during reconciliation.
func (p *Provider) OutcomeOverturned() { p.Metrics.OutcomesOverturned.Inc() }

// ReportLeftUp counts a report aged past the decision lag untouched.
func (p *Provider) ReportLeftUp() { p.Metrics.ReportsLeftUp.Inc() }
