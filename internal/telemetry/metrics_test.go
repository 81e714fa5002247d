package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestMetrics builds Metrics backed by a fresh isolated registry.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

// find returns the metric in family name whose labels match want.
func find(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	t.Fatalf("%s%v not found in gathered metrics", name, want)
	return nil
}

func Test_Metrics_RetrievalCounters(t *testing.T) {
	t.Parallel()
	m, reg := newTestMetrics(t)

	m.ObserveRetrieval("lexical", "ok", 4, 0.002)
	m.ObserveRetrieval("lexical", "ok", 3, 0.001)
	m.ObserveRetrieval("vector", "empty", 0, 0.2)

	if v := find(t, reg, "docqa_retrieval_requests_total", map[string]string{"mode": "lexical", "outcome": "ok"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("lexical/ok = %v, want 2", v)
	}
	if v := find(t, reg, "docqa_retrieval_requests_total", map[string]string{"mode": "vector", "outcome": "empty"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("vector/empty = %v, want 1", v)
	}
	if n := find(t, reg, "docqa_retrieval_duration_seconds", map[string]string{"mode": "lexical"}).GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("lexical duration samples = %d, want 2", n)
	}
	if s := find(t, reg, "docqa_retrieval_results", map[string]string{"mode": "lexical"}).GetHistogram().GetSampleSum(); s != 7 {
		t.Errorf("lexical result sum = %v, want 7", s)
	}
}

func Test_Metrics_IngestionAndPool(t *testing.T) {
	t.Parallel()
	m, reg := newTestMetrics(t)

	m.ObserveIngestion("processed", 12, 0.4)
	m.ObserveIngestion("error", 0, 0.1)
	m.SetFragments(12)

	if v := find(t, reg, "docqa_ingestion_documents_total", map[string]string{"outcome": "processed"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("processed = %v, want 1", v)
	}
	if v := find(t, reg, "docqa_pool_fragments", nil).GetGauge().GetValue(); v != 12 {
		t.Errorf("pool_fragments = %v, want 12", v)
	}
}

func Test_Metrics_WriteTextfile(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	m.ObserveRetrieval("lexical", "fallback", 4, 0.001)

	path := filepath.Join(t.TempDir(), "docqa.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `docqa_retrieval_requests_total{mode="lexical",outcome="fallback"} 1`) {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}
