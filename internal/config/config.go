package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// 台帳バックエンドの識別子。LEDGER_BACKENDで指定する。
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendFile     = "file"
	BackendSheet    = "sheet"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Ledger
	LedgerBackend  string
	DatabaseURL    string
	SQLitePath     string
	LedgerFilePath string
	SheetAPIURL    string
	SheetAPIKey    string

	// Generator
	GeneratorAPIURL string
	GeneratorAPIKey string
	GeneratorModel  string
	UseGeneratorAPI bool
	GenerateTimeout time.Duration

	// Notification
	ResendAPIKey    string
	SenderEmail     string
	EmailRedirectTo string

	// Eligibility
	OracleTimezone string

	// Rate Limit
	RateLimitGeneral int
	RateLimitConsult int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 必須かどうかは選択された台帳バックエンドに依存する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.LedgerBackend = getEnvString("LEDGER_BACKEND", BackendPostgres)

	var missing []string

	switch cfg.LedgerBackend {
	case BackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendSQLite:
		cfg.SQLitePath = getEnvString("SQLITE_PATH", "kiaora.db")
	case BackendFile:
		cfg.LedgerFilePath = getEnvString("LEDGER_FILE_PATH", "consultation_ledger.csv")
	case BackendSheet:
		cfg.SheetAPIURL = os.Getenv("SHEET_API_URL")
		if cfg.SheetAPIURL == "" {
			missing = append(missing, "SHEET_API_URL")
		}
		cfg.SheetAPIKey = os.Getenv("SHEET_API_KEY")
		if cfg.SheetAPIKey == "" {
			missing = append(missing, "SHEET_API_KEY")
		}
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.LedgerBackend)
	}

	cfg.UseGeneratorAPI = getEnvBool("USE_GENERATOR_API", false)
	if cfg.UseGeneratorAPI {
		cfg.GeneratorAPIKey = os.Getenv("GENERATOR_API_KEY")
		if cfg.GeneratorAPIKey == "" {
			missing = append(missing, "GENERATOR_API_KEY")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GeneratorAPIURL = getEnvString("GENERATOR_API_URL", "https://api.openai.com/v1/chat/completions")
	cfg.GeneratorModel = getEnvString("GENERATOR_MODEL", "gpt-4o-mini")
	cfg.GenerateTimeout = getEnvDuration("GENERATE_TIMEOUT", 30*time.Second)
	cfg.ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	cfg.SenderEmail = getEnvString("SENDER_EMAIL", "oracle@kiaora.example")
	cfg.EmailRedirectTo = getEnvString("EMAIL_REDIRECT_TO", "")
	cfg.OracleTimezone = getEnvString("ORACLE_TIMEZONE", "Pacific/Auckland")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 60)
	cfg.RateLimitConsult = getEnvInt("RATE_LIMIT_CONSULT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
