package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gather returns the summed value of every sample of the named family.
func gather(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"))

	m.ConnectionAccepted()
	m.ConnectionAccepted()
	m.Dispatched(ModeWorker)
	m.Dispatched(ModeSync)
	m.Handled("ok", 10*time.Millisecond)
	m.BytesSent(4096)
	m.BytesSent(-1)
	m.Delegated("ok")
	m.SetBusySlots(3)
	m.SetPoolSize(4)

	checks := map[string]float64{
		"test_connections_total":           2,
		"test_dispatched_total":            2,
		"test_requests_total":              1,
		"test_body_bytes_sent_total":       4096,
		"test_delegations_total":           1,
		"test_busy_slots":                  3,
		"test_pool_slots":                  4,
		"test_connection_duration_seconds": 1,
	}
	for name, want := range checks {
		if got := gather(t, reg, name); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionAccepted()
	m.Dispatched(ModeSync)
	m.Handled("ok", time.Second)
	m.BytesSent(1)
	m.Delegated("ok")
	m.SetBusySlots(1)
	m.SetPoolSize(1)
}

func TestMetrics_Options(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(
		WithRegistry(reg),
		WithSubsystem("conn"),
		WithConstLabels(prometheus.Labels{"site": "a"}),
		WithBuckets([]float64{0.1, 1}),
	)

	m.ConnectionAccepted()
	m.Handled("ok", 50*time.Millisecond)

	if got := gather(t, reg, "docroot_conn_connections_total"); got != 1 {
		t.Fatalf("docroot_conn_connections_total = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var site string
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "site" {
					site = lp.GetValue()
				}
			}
			if site != "a" {
				t.Errorf("%s: site label = %q, want %q", mf.GetName(), site, "a")
			}
		}
		if mf.GetName() != "docroot_conn_connection_duration_seconds" {
			continue
		}
		buckets := mf.GetMetric()[0].GetHistogram().GetBucket()
		if len(buckets) != 2 || buckets[0].GetUpperBound() != 0.1 || buckets[0].GetCumulativeCount() != 1 {
			t.Errorf("buckets = %v", buckets)
		}
	}
}
