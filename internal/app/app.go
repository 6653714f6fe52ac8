// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/kiaora/internal/ceremony"
	"github.com/hitoshi/kiaora/internal/config"
	"github.com/hitoshi/kiaora/internal/database"
	"github.com/hitoshi/kiaora/internal/deck"
	"github.com/hitoshi/kiaora/internal/eligibility"
	"github.com/hitoshi/kiaora/internal/generate"
	"github.com/hitoshi/kiaora/internal/handler"
	"github.com/hitoshi/kiaora/internal/ledger"
	"github.com/hitoshi/kiaora/internal/logger"
	"github.com/hitoshi/kiaora/internal/metrics"
	"github.com/hitoshi/kiaora/internal/middleware"
	"github.com/hitoshi/kiaora/internal/notify"
	"github.com/hitoshi/kiaora/internal/oracle"
	"github.com/hitoshi/kiaora/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("ledger_backend", cfg.LedgerBackend),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// ledgerDeps は選択された台帳バックエンドとその周辺依存をまとめる。
type ledgerDeps struct {
	store    ledger.Store
	archiver oracle.Archiver // 実装しないバックエンドではnil
	pinger   handler.Pinger  // ヘルスチェック非対応バックエンドではnil
	close    func() error
}

// openLedger はLEDGER_BACKENDの設定に従って台帳ストアを構築する。
// 外部エンドポイントを持つバックエンドは接続前にURL検証を行う。
func openLedger(cfg *config.Config, ssrfGuard security.SSRFGuardService) (*ledgerDeps, error) {
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		store := ledger.NewPostgresStore(db)
		return &ledgerDeps{store: store, archiver: store, pinger: db, close: db.Close}, nil

	case config.BackendSQLite:
		store, err := ledger.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
		}
		slog.Info("sqlite ledger opened", slog.String("path", cfg.SQLitePath))
		return &ledgerDeps{store: store, archiver: store, pinger: store, close: store.Close}, nil

	case config.BackendFile:
		store := ledger.NewFileStore(cfg.LedgerFilePath)
		slog.Info("file ledger opened", slog.String("path", cfg.LedgerFilePath))
		return &ledgerDeps{store: store, close: func() error { return nil }}, nil

	case config.BackendSheet:
		// 運用者設定のURLとはいえ、内部ネットワークへ向けない
		if err := ssrfGuard.ValidateURL(cfg.SheetAPIURL); err != nil {
			return nil, fmt.Errorf("invalid sheet endpoint: %w", err)
		}
		client := ssrfGuard.NewSafeClient(10 * time.Second)
		store := ledger.NewSheetStore(client, slog.Default(), cfg.SheetAPIURL, cfg.SheetAPIKey)
		slog.Info("sheet ledger configured")
		return &ledgerDeps{store: store, close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.LedgerBackend)
	}
}

// runServe はAPIサーバーモードで起動する。
// 台帳バックエンドを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 鑑定の暦日判定に使うタイムゾーン
	loc, err := time.LoadLocation(cfg.OracleTimezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.OracleTimezone, err)
	}

	// 2. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()

	// 3. 台帳ストアの構築
	ld, err := openLedger(cfg, ssrfGuard)
	if err != nil {
		return err
	}
	defer ld.close()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	checker := eligibility.NewChecker(ld.store, loc, slog.Default())
	shuffler := deck.NewShuffler()

	if cfg.UseGeneratorAPI {
		if err := ssrfGuard.ValidateURL(cfg.GeneratorAPIURL); err != nil {
			return fmt.Errorf("invalid generator endpoint: %w", err)
		}
	}
	generator := generate.NewClient(
		ssrfGuard.NewSafeClient(cfg.GenerateTimeout),
		slog.Default(),
		generate.Config{
			Endpoint: cfg.GeneratorAPIURL,
			APIKey:   cfg.GeneratorAPIKey,
			Model:    cfg.GeneratorModel,
			UseAPI:   cfg.UseGeneratorAPI,
		},
	)

	// 通知はAPIキーが設定されている場合のみ有効にする
	var notifier oracle.Notifier
	if cfg.ResendAPIKey != "" {
		notifier = notify.NewMailer(
			ssrfGuard.NewSafeClient(10*time.Second),
			slog.Default(),
			security.NewTextSanitizer(),
			notify.Config{
				APIKey:      cfg.ResendAPIKey,
				SenderEmail: cfg.SenderEmail,
				RedirectTo:  cfg.EmailRedirectTo,
			},
		)
	} else {
		slog.Info("notification disabled (RESEND_API_KEY not set)")
	}

	consultService := oracle.NewService(
		checker, shuffler, generator, ld.store,
		notifier, ld.archiver, collector, slog.Default(),
	)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート値はreq/min単位なのでreq/secに変換する
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitConsult > 0 {
		rateLimiterCfg.ConsultRate = rate.Limit(float64(cfg.RateLimitConsult) / 60.0)
		rateLimiterCfg.ConsultBurst = cfg.RateLimitConsult
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimiter:         rateLimiter,
		Logger:              slog.Default(),
		ConsultationService: consultService,
		NewCeremonyMachine: func() *ceremony.Machine {
			return ceremony.NewMachine(ceremony.DefaultTimings(), slog.Default())
		},
		HealthPinger:   ld.pinger,
		MetricsHandler: metrics.Handler(registry),
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQLバックエンドでのみ有効。SQLiteはスキーマを接続時に適用し、
// ファイル・シートバックエンドにはスキーマが無い。
func runMigrate(cfg *config.Config) error {
	if cfg.LedgerBackend != config.BackendPostgres {
		return fmt.Errorf("migrate command requires the postgres backend (current: %s)", cfg.LedgerBackend)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
