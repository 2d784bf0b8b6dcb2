package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("PROCESSOR_BASE_URL", "https://api.processor.example/v1")
	t.Setenv("PROCESSOR_MERCHANT_ID", "merchant-1")
	t.Setenv("PROCESSOR_API_KEY", "key-1")
	t.Setenv("SITE_PUBLIC_DOMAIN", "https://pay.shop.example/")
	t.Setenv("SITE_FORWARD_SECRET", "forward-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.95", cfg.Reconcile.ToleranceValue().String())
	assert.True(t, cfg.Reconcile.DualProbe)
	assert.Equal(t, 24*time.Hour, cfg.Reconcile.InvoiceTTL)
	assert.Equal(t, "/get_invoices", cfg.Processor.LookupPath)
	assert.Equal(t, "X-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "crypto-checkout", cfg.App.Name)
	assert.Equal(t, "https://pay.shop.example/payment/success", cfg.Site.URL(cfg.Site.SuccessPath))
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("PROCESSOR_BASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "валидная конфигурация", mutate: func(c *Config) {}},
		{name: "относительный base url", mutate: func(c *Config) { c.Processor.BaseURL = "/api" }, wantErr: true},
		{name: "домен без схемы", mutate: func(c *Config) { c.Site.PublicDomain = "pay.shop.example" }, wantErr: true},
		{name: "допуск больше единицы", mutate: func(c *Config) { c.Reconcile.Tolerance = "1.2" }, wantErr: true},
		{name: "допуск не число", mutate: func(c *Config) { c.Reconcile.Tolerance = "abc" }, wantErr: true},
		{name: "нулевой TTL счёта", mutate: func(c *Config) { c.Reconcile.InvoiceTTL = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Processor: ProcessorConfig{BaseURL: "https://api.processor.example"},
				Site:      SiteConfig{PublicDomain: "https://pay.shop.example"},
				Reconcile: ReconcileConfig{Tolerance: "0.95", InvoiceTTL: time.Hour},
			}
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
