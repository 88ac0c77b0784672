// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar は設定ファイルのパスを指定する環境変数。
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPath は既定の設定ファイルのパス。存在しなければ読み込まない。
const DefaultConfigPath = "config.yaml"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `koanf:"database_url"`

	// Auth
	JWTSecret    string        `koanf:"jwt_secret"`
	JWTExpiresIn time.Duration `koanf:"jwt_expires_in"`

	// Server
	ServerPort string `koanf:"server_port"`
	LogLevel   string `koanf:"log_level"`

	// Cookie
	CookieSecure bool   `koanf:"cookie_secure"`
	CookieDomain string `koanf:"cookie_domain"`
	CSRFEnabled  bool   `koanf:"csrf_enabled"`

	// CORS / Frontend
	CORSAllowedOrigin string `koanf:"cors_allowed_origin"`
	FrontendURL       string `koanf:"frontend_url"`

	// Rate Limit
	RateLimitGeneral int `koanf:"rate_limit_general"`
	RateLimitAuth    int `koanf:"rate_limit_auth"`

	// Lending
	LoanPeriod          time.Duration `koanf:"loan_period"`
	CatalogCacheMaxCost int64         `koanf:"catalog_cache_max_cost"`
	EventBuffer         int64         `koanf:"event_buffer"`

	// Payment
	StripeSecretKey     string        `koanf:"stripe_secret_key"`
	StripeWebhookSecret string        `koanf:"stripe_webhook_secret"`
	StripeAPIBase       string        `koanf:"stripe_api_base"`
	PaymentTimeout      time.Duration `koanf:"payment_timeout"`

	// Worker
	OverdueReminderInterval time.Duration `koanf:"overdue_reminder_interval"`
	OverdueMaxConcurrent    int           `koanf:"overdue_max_concurrent"`
	NotificationRetention   int           `koanf:"notification_retention_days"`
}

// Defaults は既定値を設定したConfigを返す。
func Defaults() Config {
	return Config{
		JWTExpiresIn:            7 * 24 * time.Hour,
		ServerPort:              "8080",
		LogLevel:                "info",
		CORSAllowedOrigin:       "http://localhost:5173",
		FrontendURL:             "http://localhost:5173",
		RateLimitGeneral:        120,
		RateLimitAuth:           20,
		LoanPeriod:              14 * 24 * time.Hour,
		CatalogCacheMaxCost:     10_000,
		EventBuffer:             64,
		StripeAPIBase:           "https://api.stripe.com",
		PaymentTimeout:          10 * time.Second,
		OverdueReminderInterval: 24 * time.Hour,
		OverdueMaxConcurrent:    10,
		NotificationRetention:   90,
	}
}

// Load は既定値、設定ファイル、環境変数の順に重ねてConfigを読み込む。
// 後から読み込んだ値が優先される。必須項目が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗しました: %w", path, err)
		}
	}

	// 環境変数は設定項目と同名（大文字）のもののみ取り込む
	known := make(map[string]bool)
	for _, key := range k.Keys() {
		known[key] = true
	}
	envProvider := env.Provider("", ".", func(key string) string {
		key = strings.ToLower(key)
		if !known[key] {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は必須項目と値の範囲を検証する。
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive: %s", c.JWTExpiresIn)
	}
	if c.LoanPeriod <= 0 {
		return fmt.Errorf("LOAN_PERIOD must be positive: %s", c.LoanPeriod)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitAuth <= 0 {
		return fmt.Errorf("rate limits must be positive: general=%d auth=%d", c.RateLimitGeneral, c.RateLimitAuth)
	}
	if c.OverdueMaxConcurrent <= 0 {
		return fmt.Errorf("OVERDUE_MAX_CONCURRENT must be positive: %d", c.OverdueMaxConcurrent)
	}
	return nil
}

// PaymentEnabled は決済プロバイダの秘密鍵が設定されているかどうかを返す。
func (c *Config) PaymentEnabled() bool {
	return c.StripeSecretKey != ""
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath
	}
	return ""
}
