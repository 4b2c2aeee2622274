package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const outcomeOK = "ok"

// Storefront records cart, checkout and submission activity.
type Storefront struct {
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	transitions      *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	clearFailures    prometheus.Counter
}

// NewStorefront registers the storefront metrics on the provided registerer.
// A nil registerer yields a recorder whose methods are no-ops.
func NewStorefront(reg prometheus.Registerer) *Storefront {
	if reg == nil {
		return &Storefront{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"op", "outcome"})
	mutationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_mutation_duration_seconds",
		Help:    "Duration of cart mutations including queueing behind same-line mutations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_transitions_total",
		Help: "Checkout state transitions by target state and outcome.",
	}, []string{"to", "outcome"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_submissions_total",
		Help: "Order submissions by outcome.",
	}, []string{"outcome"})
	clearFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_clear_failures_total",
		Help: "Cart clears that failed after a successful order creation.",
	})
	reg.MustRegister(mutations, mutationDuration, transitions, submissions, clearFailures)
	return &Storefront{
		mutations:        mutations,
		mutationDuration: mutationDuration,
		transitions:      transitions,
		submissions:      submissions,
		clearFailures:    clearFailures,
	}
}

// ObserveMutation records one cart mutation. An empty outcome counts as success.
func (s *Storefront) ObserveMutation(op, outcome string, duration time.Duration) {
	if s == nil || s.mutations == nil {
		return
	}
	op = normalizeLabel(op)
	s.mutations.WithLabelValues(op, normalizeOutcome(outcome)).Inc()
	s.mutationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// IncTransition counts an attempted checkout transition.
func (s *Storefront) IncTransition(to, outcome string) {
	if s == nil || s.transitions == nil {
		return
	}
	s.transitions.WithLabelValues(normalizeLabel(to), normalizeOutcome(outcome)).Inc()
}

// IncSubmission counts an order submission attempt.
func (s *Storefront) IncSubmission(outcome string) {
	if s == nil || s.submissions == nil {
		return
	}
	s.submissions.WithLabelValues(normalizeOutcome(outcome)).Inc()
}

// IncClearFailure counts a best-effort cart clear that failed.
func (s *Storefront) IncClearFailure() {
	if s == nil || s.clearFailures == nil {
		return
	}
	s.clearFailures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func normalizeOutcome(outcome string) string {
	if outcome == "" {
		return outcomeOK
	}
	return strings.ToLower(outcome)
}
