// Package app собирает ядро сверки из конфигурации. Используется сервисом
// и утилитой paymentctl.
package app

import (
	"fmt"

	"example.com/crypto-checkout/pkg/jwt"
	"example.com/crypto-checkout/services/payment/internal/config"
	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/issuer"
	"example.com/crypto-checkout/services/payment/internal/processor"
	"example.com/crypto-checkout/services/payment/internal/reconcile"
)

// Core — компоненты, не зависящие от инфраструктуры хранения и брокера.
type Core struct {
	Classifier domain.Classifier
	Gateway    *processor.Gateway
	Engine     *reconcile.Engine
	Issuer     *issuer.Issuer
	Forward    *jwt.ForwardSigner
}

// NewCore создаёт ядро. Конфигурация не изменяется.
func NewCore(cfg *config.Config) (*Core, error) {
	classifier := domain.NewClassifier(domain.NewAmountReconciler(cfg.Reconcile.ToleranceValue()))
	gateway := processor.NewGateway(processor.NewClient(cfg.Processor, nil), classifier)

	forward, err := jwt.NewForwardSigner(cfg.Site.ForwardSecret, cfg.App.Name, cfg.Site.ForwardTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания подписи переадресации: %w", err)
	}

	return &Core{
		Classifier: classifier,
		Gateway:    gateway,
		Engine:     reconcile.NewEngine(gateway, reconcile.WithDualProbe(cfg.Reconcile.DualProbe)),
		Issuer:     issuer.New(gateway, forward, cfg.Site, cfg.Reconcile.InvoiceTTL),
		Forward:    forward,
	}, nil
}
