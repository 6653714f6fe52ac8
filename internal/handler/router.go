package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/kiaora/internal/ceremony"
	"github.com/hitoshi/kiaora/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 鑑定
	ConsultationService ConsultationServiceInterface

	// シャッフル儀式の演出ストリーム。nilの場合は/api/ceremonyを公開しない。
	NewCeremonyMachine func() *ceremony.Machine

	// ヘルスチェック。リレーショナルバックエンド未使用時はnil。
	HealthPinger Pinger

	// Prometheusスクレイプ用ハンドラー。nilの場合は/metricsを公開しない。
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → Recovery → SecurityHeaders → Logging → RateLimit(General)
//
// /health はレート制限の外に配置する（コンテナのヘルスチェックが叩くため）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	consultationHandler := NewConsultationHandler(deps.ConsultationService)
	healthHandler := NewHealthHandler(deps.HealthPinger)

	r.Get("/health", healthHandler.Health)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/consultations - 鑑定リクエスト（鑑定専用レート制限を追加）
		r.With(deps.RateLimiter.ConsultMiddleware()).Post("/api/consultations", consultationHandler.Consult)

		// GET /api/ceremony - シャッフル儀式のフェーズをSSEで配信
		if deps.NewCeremonyMachine != nil {
			ceremonyHandler := NewCeremonyHandler(deps.NewCeremonyMachine, deps.Logger)
			r.Get("/api/ceremony", ceremonyHandler.Stream)
		}
	})

	return r
}
