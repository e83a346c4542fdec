package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestInstrumentHandlerRecordsMetrics(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/agents/abc123", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	if !metricCounterGreaterOrEqual(t, "trust_ledger_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/agents/:id",
		"status": "202",
	}, 1) {
		t.Fatalf("expected http request counter to increment")
	}

	if !metricHistogramCountGreaterOrEqual(t, "trust_ledger_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/agents/:id",
	}, 1) {
		t.Fatalf("expected http duration histogram to record samples")
	}
}

func TestRecordTraceSubmissionAndAnomaly(t *testing.T) {
	RecordTraceSubmission("coding", "success")
	if !metricCounterGreaterOrEqual(t, "trust_ledger_pipeline_traces_submitted_total", map[string]string{
		"category": "coding",
		"status":   "success",
	}, 1) {
		t.Fatalf("expected trace submission counter to increase")
	}

	RecordAnomaly("duration_spike", "warning")
	if !metricCounterGreaterOrEqual(t, "trust_ledger_reputation_anomalies_detected_total", map[string]string{
		"type":     "duration_spike",
		"severity": "warning",
	}, 1) {
		t.Fatalf("expected anomaly counter to increase")
	}
}

func TestRecordWebhookDeliveryAndQueueDepth(t *testing.T) {
	RecordWebhookDelivery("delivered")
	if !metricCounterGreaterOrEqual(t, "trust_ledger_webhook_deliveries_total", map[string]string{
		"outcome": "delivered",
	}, 1) {
		t.Fatalf("expected webhook delivery counter to increase")
	}

	SetWebhookQueueDepth(7)
	if !metricGaugeEquals(t, "trust_ledger_webhook_queue_depth", map[string]string{}, 7) {
		t.Fatalf("expected queue depth gauge to reflect latest value")
	}
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricGaugeEquals(t *testing.T, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetGauge() != nil {
				return metric.GetGauge().GetValue() == expected
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"/healthz", "/healthz"},
		{"/agents", "/agents"},
		{"/agents/", "/agents"},
		{"/agents/abc123", "/agents/:id"},
		{"/agents/abc123/history", "/agents/:id/history"},
		{"/agents/abc123/compliance", "/agents/:id/compliance"},
		{"/webhooks/a/b", "/webhooks/:id/b"},
		{"leaderboard", "/leaderboard"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := canonicalPath(tt.input)
			if result != tt.expected {
				t.Errorf("canonicalPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
