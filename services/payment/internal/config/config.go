// Package config содержит конфигурацию платёжного сервиса.
// Значение собирается один раз при старте и передаётся компонентам явно.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	sharedcfg "example.com/crypto-checkout/pkg/config"
)

// Config — полная конфигурация платёжного сервиса.
type Config struct {
	sharedcfg.Config

	HTTP      HTTPConfig
	Processor ProcessorConfig
	Site      SiteConfig
	Webhook   WebhookConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
}

// HTTPConfig — настройки HTTP сервера.
type HTTPConfig struct {
	Host         string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	// CORSOrigins — разрешённые origins через запятую, "*" для всех.
	CORSOrigins []string `env:"HTTP_CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// Addr возвращает адрес HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProcessorConfig — доступ к REST API платёжного процессора.
type ProcessorConfig struct {
	BaseURL    string        `env:"PROCESSOR_BASE_URL,required"`
	MerchantID string        `env:"PROCESSOR_MERCHANT_ID,required"`
	APIKey     string        `env:"PROCESSOR_API_KEY,required"`
	CreatePath string        `env:"PROCESSOR_CREATE_PATH" envDefault:"/create_invoice"`
	LookupPath string        `env:"PROCESSOR_LOOKUP_PATH" envDefault:"/get_invoices"`
	Timeout    time.Duration `env:"PROCESSOR_TIMEOUT" envDefault:"15s"`

	BreakerFailureRatio float64       `env:"PROCESSOR_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"PROCESSOR_BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerOpenTimeout  time.Duration `env:"PROCESSOR_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
}

// SiteConfig — собственный публичный адрес сервиса и пути промежуточных endpoints.
type SiteConfig struct {
	PublicDomain string `env:"SITE_PUBLIC_DOMAIN,required"` // например https://pay.shop.example
	CallbackPath string `env:"SITE_CALLBACK_PATH" envDefault:"/api/v1/webhooks/processor"`
	SuccessPath  string `env:"SITE_SUCCESS_PATH" envDefault:"/payment/success"`
	CancelPath   string `env:"SITE_CANCEL_PATH" envDefault:"/payment/cancel"`

	ForwardSecret   string        `env:"SITE_FORWARD_SECRET,required"`
	ForwardTokenTTL time.Duration `env:"SITE_FORWARD_TOKEN_TTL" envDefault:"24h"`
}

// URL склеивает публичный домен и путь.
func (c SiteConfig) URL(path string) string {
	return strings.TrimRight(c.PublicDomain, "/") + "/" + strings.TrimLeft(path, "/")
}

// WebhookConfig — проверка подлинности и дедупликация уведомлений.
type WebhookConfig struct {
	// HMACSecret — ключ HMAC-SHA512 подписи; пусто отключает схему.
	HMACSecret      string `env:"WEBHOOK_HMAC_SECRET"`
	SignatureHeader string `env:"WEBHOOK_SIGNATURE_HEADER" envDefault:"X-Signature"`
	// SharedSecret — значение поля secret в теле уведомления; пусто отключает схему.
	SharedSecret string `env:"WEBHOOK_SHARED_SECRET"`
	// RequireSignature отклоняет уведомления без подписи и без секрета.
	RequireSignature bool          `env:"WEBHOOK_REQUIRE_SIGNATURE" envDefault:"false"`
	DedupTTL         time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"72h"`
	MaxBodyBytes     int64         `env:"WEBHOOK_MAX_BODY_BYTES" envDefault:"1048576"`
}

// ReconcileConfig — параметры сверки.
type ReconcileConfig struct {
	Tolerance  string        `env:"RECONCILE_TOLERANCE" envDefault:"0.95"`
	DualProbe  bool          `env:"RECONCILE_DUAL_PROBE" envDefault:"true"`
	InvoiceTTL time.Duration `env:"RECONCILE_INVOICE_TTL" envDefault:"24h"`
	// RecheckRetries — повторы обработки команды payment.recheck до DLQ.
	RecheckRetries int `env:"RECONCILE_RECHECK_RETRIES" envDefault:"3"`
}

// ToleranceValue возвращает допуск как decimal.
func (c ReconcileConfig) ToleranceValue() decimal.Decimal {
	d, err := decimal.NewFromString(c.Tolerance)
	if err != nil {
		return decimal.RequireFromString("0.95")
	}
	return d
}

// RateLimitConfig — ограничение частоты запросов к /api/v1.
type RateLimitConfig struct {
	Enabled       bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsLimit int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load загружает конфигурацию из окружения (и .env) и валидирует её.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := sharedcfg.LoadInto(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, которые env не может проверить сам.
func (c *Config) Validate() error {
	var errs []error

	if err := absoluteURL(c.Processor.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("PROCESSOR_BASE_URL: %w", err))
	}
	if err := absoluteURL(c.Site.PublicDomain); err != nil {
		errs = append(errs, fmt.Errorf("SITE_PUBLIC_DOMAIN: %w", err))
	}

	tol, err := decimal.NewFromString(c.Reconcile.Tolerance)
	if err != nil || !tol.IsPositive() || tol.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("RECONCILE_TOLERANCE: ожидается число в (0, 1], получено %q", c.Reconcile.Tolerance))
	}
	if c.Reconcile.InvoiceTTL <= 0 {
		errs = append(errs, errors.New("RECONCILE_INVOICE_TTL должен быть положительным"))
	}

	return errors.Join(errs...)
}

func absoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ожидается абсолютный http(s) URL, получено %q", raw)
	}
	return nil
}
