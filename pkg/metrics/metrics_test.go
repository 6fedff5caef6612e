package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestGenerationMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewGenerationMetrics(reg)

	metrics.IncStarted("openai")
	metrics.IncFinished("openai", "completed")
	metrics.ObserveDuration("openai", 42*time.Second)
	metrics.IncChunksFlushed("content")
	metrics.IncChunksFlushed("content")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "generation_jobs_started", "provider", "openai"); err != nil {
		t.Fatalf("fetch started: %v", err)
	} else if got != 1 {
		t.Fatalf("expected started=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "generation_chunks_flushed", "phase", "content"); err != nil {
		t.Fatalf("fetch chunks: %v", err)
	} else if got != 2 {
		t.Fatalf("expected chunks=2, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "generation_duration_seconds", "provider", "openai"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestBillingMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewBillingMetrics(reg)

	metrics.ObserveCharge("blog_generation", 1.25)
	metrics.ObserveCharge("blog_generation", 0.75)
	metrics.IncDeclined("blog_generation")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "billing_charges", "service", "blog_generation"); err != nil {
		t.Fatalf("fetch charges: %v", err)
	} else if got != 2 {
		t.Fatalf("expected charges=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "billing_charged_credits_total", "service", "blog_generation"); err != nil {
		t.Fatalf("fetch total: %v", err)
	} else if got != 2 {
		t.Fatalf("expected total=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "billing_declined", "service", "blog_generation"); err != nil {
		t.Fatalf("fetch declined: %v", err)
	} else if got != 1 {
		t.Fatalf("expected declined=1, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	metrics := NewGenerationMetrics(nil)
	metrics.IncStarted("openai")
	metrics.ObserveDuration("", time.Second)

	billing := NewBillingMetrics(nil)
	billing.ObserveCharge("", 1)
	billing.IncDeclined("")

	cron := NewCronJobMetrics(nil)
	cron.IncSuccess("reaper")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
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

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
