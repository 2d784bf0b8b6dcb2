// Package handler содержит HTTP обработчики платёжного API.
package handler

import (
	"context"

	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/issuer"
	"example.com/crypto-checkout/services/payment/internal/notification"
	"example.com/crypto-checkout/services/payment/internal/reconcile"
)

// InvoiceIssuer выставляет счета. Реализуется issuer.Issuer.
type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, req issuer.Request) (*issuer.Result, error)
}

// Reconciler сверяет статус заказа. Реализуется reconcile.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string) (domain.PaymentOutcome, error)
	ReconcileDetailed(ctx context.Context, orderID, invoiceID string) (*reconcile.Detailed, error)
}

// NotificationHandler обрабатывает уведомления процессора. Реализуется notification.Handler.
type NotificationHandler interface {
	Handle(ctx context.Context, req notification.Request) (*notification.Result, error)
}

// ForwardVerifier проверяет токен переадресации. Реализуется jwt.ForwardSigner.
type ForwardVerifier interface {
	Verify(token, orderID, redirect string) error
}
