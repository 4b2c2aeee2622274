package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestStorefrontMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorefront(reg)

	m.ObserveMutation("increase", "", 250*time.Millisecond)
	m.ObserveMutation("increase", "STOCK_EXCEEDED", time.Millisecond)
	m.IncTransition("selecting_payment", "EMPTY_CART")
	m.IncSubmission("")
	m.IncClearFailure()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cart_mutations_total", map[string]string{"op": "increase", "outcome": "ok"}); err != nil {
		t.Fatalf("fetch mutations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected ok mutations=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cart_mutations_total", map[string]string{"op": "increase", "outcome": "stock_exceeded"}); err != nil {
		t.Fatalf("fetch rejected mutations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected rejected mutations=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_transitions_total", map[string]string{"to": "selecting_payment", "outcome": "empty_cart"}); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected transitions=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "order_submissions_total", map[string]string{"outcome": "ok"}); err != nil {
		t.Fatalf("fetch submissions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected submissions=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cart_clear_failures_total", nil); err != nil {
		t.Fatalf("fetch clear failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected clear failures=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "cart_mutation_duration_seconds", "op", "increase"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilStorefrontIsNoop(t *testing.T) {
	var m *Storefront
	m.ObserveMutation("add", "", time.Second)
	m.IncTransition("confirmed", "")
	m.IncSubmission("network_error")
	m.IncClearFailure()

	unregistered := NewStorefront(nil)
	unregistered.IncSubmission("")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
