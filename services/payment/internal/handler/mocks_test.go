package handler

import (
	"context"

	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/issuer"
	"example.com/crypto-checkout/services/payment/internal/notification"
	"example.com/crypto-checkout/services/payment/internal/reconcile"
)

// MockIssuer — мок InvoiceIssuer с функциональными полями.
type MockIssuer struct {
	CreateInvoiceFunc func(ctx context.Context, req issuer.Request) (*issuer.Result, error)
}

func (m *MockIssuer) CreateInvoice(ctx context.Context, req issuer.Request) (*issuer.Result, error) {
	if m.CreateInvoiceFunc != nil {
		return m.CreateInvoiceFunc(ctx, req)
	}
	return nil, nil
}

// MockReconciler — мок Reconciler.
type MockReconciler struct {
	ReconcileFunc         func(ctx context.Context, orderID string) (domain.PaymentOutcome, error)
	ReconcileDetailedFunc func(ctx context.Context, orderID, invoiceID string) (*reconcile.Detailed, error)
}

func (m *MockReconciler) Reconcile(ctx context.Context, orderID string) (domain.PaymentOutcome, error) {
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, orderID)
	}
	return domain.OutcomeWaiting, nil
}

func (m *MockReconciler) ReconcileDetailed(ctx context.Context, orderID, invoiceID string) (*reconcile.Detailed, error) {
	if m.ReconcileDetailedFunc != nil {
		return m.ReconcileDetailedFunc(ctx, orderID, invoiceID)
	}
	return nil, nil
}

// MockNotifications — мок NotificationHandler.
type MockNotifications struct {
	HandleFunc func(ctx context.Context, req notification.Request) (*notification.Result, error)
}

func (m *MockNotifications) Handle(ctx context.Context, req notification.Request) (*notification.Result, error) {
	if m.HandleFunc != nil {
		return m.HandleFunc(ctx, req)
	}
	return nil, nil
}
