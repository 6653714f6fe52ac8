package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_RegistersMetrics は全メトリクスがレジストリに登録されることを検証する。
func TestNewCollector_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordConsultation()
	c.RecordRejection("already_consulted_today")
	c.RecordCardDrawn("Aroha")
	c.RecordGenerationFallback()
	c.RecordGenerationLatency(120 * time.Millisecond)
	c.RecordLedgerError("write")
	c.RecordEmailSent()
	c.RecordEmailFailure()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	want := map[string]bool{
		"kiaora_consultations_total":          false,
		"kiaora_consultations_rejected_total": false,
		"kiaora_cards_drawn_total":            false,
		"kiaora_generation_fallback_total":    false,
		"kiaora_generation_latency_seconds":   false,
		"kiaora_ledger_errors_total":          false,
		"kiaora_emails_sent_total":            false,
		"kiaora_email_failures_total":         false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("メトリクス %s が登録されていない", name)
		}
	}
}

// TestSetupMetricsRoute は/metricsエンドポイントがPrometheus形式で応答することを検証する。
func TestSetupMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordConsultation()

	handler := SetupMetricsRoute(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kiaora_consultations_total 1") {
		t.Errorf("レスポンスにカウンタ値が含まれるべき:\n%s", rec.Body.String())
	}
}
