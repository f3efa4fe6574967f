package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_Singleton(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	if a != b {
		t.Fatal("expected NewMetrics to return the same instance")
	}
}

func TestNewMetrics_Registered(t *testing.T) {
	m := NewMetrics()
	m.AskTotal.WithLabelValues("success").Inc()
	m.ExportsTotal.WithLabelValues("docx", "success").Inc()
	m.TablesExtracted.Add(2)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"adapta_ask_total",
		"adapta_inference_duration_seconds",
		"adapta_inference_retries_total",
		"adapta_exports_total",
		"adapta_tables_extracted_total",
	} {
		if !found[name] {
			t.Errorf("expected %s to be registered", name)
		}
	}
}
