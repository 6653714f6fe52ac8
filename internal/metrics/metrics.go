// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// オーケストレータから利用する。
type MetricsCollector interface {
	RecordConsultation()
	RecordRejection(reason string)
	RecordCardDrawn(cardName string)
	RecordGenerationFallback()
	RecordGenerationLatency(duration time.Duration)
	RecordLedgerError(op string)
	RecordEmailSent()
	RecordEmailFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	consultations      prometheus.Counter
	rejections         *prometheus.CounterVec
	cardsDrawn         *prometheus.CounterVec
	generationFallback prometheus.Counter
	generationLatency  prometheus.Histogram
	ledgerErrors       *prometheus.CounterVec
	emailsSent         prometheus.Counter
	emailFailures      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		consultations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiaora_consultations_total",
			Help: "完了した鑑定の合計数",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiaora_consultations_rejected_total",
			Help: "拒否された鑑定リクエストの理由別合計数",
		}, []string{"reason"}),
		cardsDrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiaora_cards_drawn_total",
			Help: "ドローされたカードの名前別合計数",
		}, []string{"card"}),
		generationFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiaora_generation_fallback_total",
			Help: "生成失敗により定型文で代替した鑑定の合計数",
		}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiaora_generation_latency_seconds",
			Help:    "鑑定文生成のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		ledgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiaora_ledger_errors_total",
			Help: "台帳操作エラーの操作別合計数",
		}, []string{"op"}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiaora_emails_sent_total",
			Help: "送信に成功した通知メールの合計数",
		}),
		emailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiaora_email_failures_total",
			Help: "送信に失敗した通知メールの合計数",
		}),
	}

	reg.MustRegister(
		c.consultations,
		c.rejections,
		c.cardsDrawn,
		c.generationFallback,
		c.generationLatency,
		c.ledgerErrors,
		c.emailsSent,
		c.emailFailures,
	)

	return c
}

// RecordConsultation は鑑定の完了を記録する。
func (c *Collector) RecordConsultation() {
	c.consultations.Inc()
}

// RecordRejection はリクエストの拒否を理由付きで記録する。
func (c *Collector) RecordRejection(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// RecordCardDrawn はドローされたカードを記録する。
func (c *Collector) RecordCardDrawn(cardName string) {
	c.cardsDrawn.WithLabelValues(cardName).Inc()
}

// RecordGenerationFallback は定型文による代替を記録する。
func (c *Collector) RecordGenerationFallback() {
	c.generationFallback.Inc()
}

// RecordGenerationLatency は鑑定文生成のレイテンシを記録する。
func (c *Collector) RecordGenerationLatency(duration time.Duration) {
	c.generationLatency.Observe(duration.Seconds())
}

// RecordLedgerError は台帳操作エラーを操作名（read/write）付きで記録する。
func (c *Collector) RecordLedgerError(op string) {
	c.ledgerErrors.WithLabelValues(op).Inc()
}

// RecordEmailSent は通知メールの送信成功を記録する。
func (c *Collector) RecordEmailSent() {
	c.emailsSent.Inc()
}

// RecordEmailFailure は通知メールの送信失敗を記録する。
func (c *Collector) RecordEmailFailure() {
	c.emailFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
