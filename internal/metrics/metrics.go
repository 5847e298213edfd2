// Package metrics defines the Prometheus instruments of the answer service.
//
// All instruments are registered on a caller-supplied registry so tests and multiple
// servers in one process never collide. Methods are safe on a nil *Metrics.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kotae"

// OutcomeAnswered labels grounded answers that carry no policy reason.
const OutcomeAnswered = "answered"

// Metrics holds the service instruments.
type Metrics struct {
	// AskTotal counts answered calls. Labels: outcome (policy reason family), refused.
	AskTotal *prometheus.CounterVec
	// AskDuration measures Ask latency. Labels: outcome.
	AskDuration *prometheus.HistogramVec
	// RetrievalTotal counts searches. Labels: path (vector, keyword).
	RetrievalTotal *prometheus.CounterVec
	// RetrievalDuration measures search latency. Labels: path.
	RetrievalDuration *prometheus.HistogramVec
	// TokensTotal counts generator tokens. Labels: model.
	TokensTotal *prometheus.CounterVec
	// RecordsDropped counts audit and usage records dropped under back-pressure. Labels: kind.
	RecordsDropped *prometheus.CounterVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AskTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Ask calls by outcome and refusal.",
		}, []string{"outcome", "refused"}),
		AskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Ask call latency in seconds.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		RetrievalTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Retrieval searches by path.",
		}, []string{"path"}),
		RetrievalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Tokens consumed by the answer generator.",
		}, []string{"model"}),
		RecordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_dropped_total",
			Help:      "Audit and usage records dropped because the writer queue was full.",
		}, []string{"kind"}),
	}
}

// ObserveAsk records one finished Ask call.
func (m *Metrics) ObserveAsk(reason string, refused bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := Outcome(reason)
	m.AskTotal.WithLabelValues(outcome, strconv.FormatBool(refused)).Inc()
	m.AskDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveRetrieval records one search. It matches retrieval.Observer.
func (m *Metrics) ObserveRetrieval(path string, results int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalTotal.WithLabelValues(path).Inc()
	m.RetrievalDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// AddTokens adds generator token usage.
func (m *Metrics) AddTokens(model string, tokens int) {
	if m == nil || tokens <= 0 {
		return
	}
	m.TokensTotal.WithLabelValues(model).Add(float64(tokens))
}

// RecordDropped counts a dropped record of kind (audit, usage).
func (m *Metrics) RecordDropped(kind string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(kind).Inc()
}

// Outcome maps a policy reason to a bounded label value. Tag reasons carry tenant
// data after the colon, so only the family is kept.
func Outcome(reason string) string {
	if reason == "" {
		return OutcomeAnswered
	}
	if strings.HasPrefix(reason, "doc_tag:") {
		return "doc_tag"
	}
	return reason
}
