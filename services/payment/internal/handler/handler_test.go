package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/crypto-checkout/pkg/jwt"
	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/issuer"
	"example.com/crypto-checkout/services/payment/internal/notification"
	"example.com/crypto-checkout/services/payment/internal/reconcile"
)

// =============================================================================
// Вспомогательные функции
// =============================================================================

var testPaths = Paths{
	Callback: "/api/v1/webhooks/processor",
	Success:  "/payment/success",
	Cancel:   "/payment/cancel",
}

type testDeps struct {
	issuer        *MockIssuer
	reconciler    *MockReconciler
	notifications *MockNotifications
	signer        *jwt.ForwardSigner
}

func newTestRouter(t *testing.T) (*gin.Engine, *testDeps) {
	t.Helper()

	signer, err := jwt.NewForwardSigner("forward-secret", "crypto-checkout", time.Hour)
	require.NoError(t, err)

	deps := &testDeps{
		issuer:        &MockIssuer{},
		reconciler:    &MockReconciler{},
		notifications: &MockNotifications{},
		signer:        signer,
	}

	r := NewRouter(RouterConfig{
		Issuer:          deps.issuer,
		Reconciler:      deps.reconciler,
		Notifications:   deps.notifications,
		Forward:         signer,
		Paths:           testPaths,
		SignatureHeader: "X-Signature",
		MaxBodyBytes:    1024,
	})
	gin.SetMode(gin.TestMode)
	return r.Engine(), deps
}

func perform(r http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// =============================================================================
// Invoices
// =============================================================================

func TestCreateInvoice_Created(t *testing.T) {
	r, deps := newTestRouter(t)

	var got issuer.Request
	deps.issuer.CreateInvoiceFunc = func(_ context.Context, req issuer.Request) (*issuer.Result, error) {
		got = req
		return &issuer.Result{
			Invoice:    &domain.Invoice{ID: "inv-1", OrderID: "o1", Status: domain.OutcomeWaiting},
			PaymentURL: "https://processor.example/pay/inv-1",
		}, nil
	}

	w := perform(r, http.MethodPost, "/api/v1/invoices", `{"amount":"50","currency":"USD","order_id":"o1"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	assert.True(t, got.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "USD", got.Currency)

	var res issuer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "inv-1", res.Invoice.ID)
	assert.Equal(t, domain.OutcomeWaiting, res.Invoice.Status)
	assert.NotEmpty(t, res.PaymentURL)
}

func TestCreateInvoice_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "невалидный JSON", body: `{`, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "валидация", body: `{"amount":0,"currency":"USD"}`, err: domain.NewValidationError("amount", domain.ErrInvalidAmount), wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "процессор недоступен", body: `{"amount":1,"currency":"USD"}`, err: &domain.TransportError{Op: "create_invoice", StatusCode: 502, Err: errors.New("bad gateway")}, wantCode: http.StatusBadGateway, wantErr: "processor_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, deps := newTestRouter(t)
			deps.issuer.CreateInvoiceFunc = func(context.Context, issuer.Request) (*issuer.Result, error) {
				return nil, tt.err
			}

			w := perform(r, http.MethodPost, "/api/v1/invoices", tt.body, nil)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, w).Error)
		})
	}
}

// =============================================================================
// Статус
// =============================================================================

func TestGetStatus(t *testing.T) {
	r, deps := newTestRouter(t)
	deps.reconciler.ReconcileFunc = func(_ context.Context, orderID string) (domain.PaymentOutcome, error) {
		assert.Equal(t, "o1", orderID)
		return domain.OutcomeFinished, nil
	}

	w := perform(r, http.MethodGet, "/api/v1/orders/o1/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusResponse{OrderID: "o1", Status: domain.OutcomeFinished, Paid: true}, resp)
}

func TestGetReconciliation(t *testing.T) {
	r, deps := newTestRouter(t)
	deps.reconciler.ReconcileDetailedFunc = func(_ context.Context, orderID, invoiceID string) (*reconcile.Detailed, error) {
		assert.Equal(t, "i1", invoiceID)
		probe := 1
		return &reconcile.Detailed{
			OrderID:    orderID,
			InvoiceID:  invoiceID,
			Outcome:    domain.OutcomeFinished,
			Confidence: reconcile.ConfidenceLow,
			Evidence:   []reconcile.Evidence{{Step: "probe_successful", Probe: &probe, Result: reconcile.ResultEmpty}},
		}, nil
	}

	w := perform(r, http.MethodGet, "/api/v1/orders/o1/reconciliation?invoice_id=i1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var d reconcile.Detailed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, reconcile.ConfidenceLow, d.Confidence)
	require.Len(t, d.Evidence, 1)
	assert.Equal(t, reconcile.ResultEmpty, d.Evidence[0].Result)
}

// =============================================================================
// Webhook
// =============================================================================

func TestWebhook(t *testing.T) {
	t.Run("обработано", func(t *testing.T) {
		r, deps := newTestRouter(t)
		deps.notifications.HandleFunc = func(_ context.Context, req notification.Request) (*notification.Result, error) {
			assert.Equal(t, "abc", req.Signature)
			assert.JSONEq(t, `{"order_id":"o1","id":42}`, string(req.Body))
			return &notification.Result{Outcome: domain.OutcomeFinished, Hook: notification.HookFinished}, nil
		}

		w := perform(r, http.MethodPost, testPaths.Callback, `{"order_id":"o1","id":42}`, map[string]string{"X-Signature": "abc"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"outcome":"FINISHED","hook":"on_finished","duplicate":false}`, w.Body.String())
	})

	t.Run("подпись не совпала", func(t *testing.T) {
		r, deps := newTestRouter(t)
		deps.notifications.HandleFunc = func(context.Context, notification.Request) (*notification.Result, error) {
			return nil, &domain.AuthenticityError{Scheme: notification.SchemeHMAC, Err: domain.ErrSignatureMismatch}
		}

		w := perform(r, http.MethodPost, testPaths.Callback, `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthenticated", decodeError(t, w).Error)
	})

	t.Run("нет идентификатора счёта", func(t *testing.T) {
		r, deps := newTestRouter(t)
		deps.notifications.HandleFunc = func(context.Context, notification.Request) (*notification.Result, error) {
			return nil, domain.NewValidationError("invoice_id", domain.ErrMissingIdentifier)
		}

		w := perform(r, http.MethodPost, testPaths.Callback, `{"order_id":"o1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("слишком большое тело", func(t *testing.T) {
		r, _ := newTestRouter(t)
		w := perform(r, http.MethodPost, testPaths.Callback, `{"x":"`+strings.Repeat("a", 2048)+`"}`, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

// =============================================================================
// Страницы возврата
// =============================================================================

func TestRedirect_ForwardsWithStatus(t *testing.T) {
	r, deps := newTestRouter(t)
	deps.reconciler.ReconcileFunc = func(context.Context, string) (domain.PaymentOutcome, error) {
		return domain.OutcomeFinished, nil
	}

	redirect := "https://shop.example/thanks?ref=mail"
	token, err := deps.signer.Sign("o1", redirect)
	require.NoError(t, err)

	q := url.Values{"order_id": {"o1"}, "redirect": {redirect}, "token": {token}}
	w := perform(r, http.MethodGet, testPaths.Success+"?"+q.Encode(), "", nil)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.example", loc.Host)
	assert.Equal(t, "/thanks", loc.Path)
	assert.Equal(t, "mail", loc.Query().Get("ref"))
	assert.Equal(t, "o1", loc.Query().Get("order_id"))
	assert.Equal(t, "FINISHED", loc.Query().Get("status"))
}

func TestRedirect_RejectsForgedRedirect(t *testing.T) {
	r, deps := newTestRouter(t)

	token, err := deps.signer.Sign("o1", "https://shop.example/thanks")
	require.NoError(t, err)

	q := url.Values{"order_id": {"o1"}, "redirect": {"https://evil.example"}, "token": {token}}
	w := perform(r, http.MethodGet, testPaths.Cancel+"?"+q.Encode(), "", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_token", decodeError(t, w).Error)
}

func TestRedirect_WithoutRedirectReturnsJSON(t *testing.T) {
	r, deps := newTestRouter(t)
	deps.reconciler.ReconcileFunc = func(context.Context, string) (domain.PaymentOutcome, error) {
		return domain.OutcomeWaiting, nil
	}

	w := perform(r, http.MethodGet, testPaths.Cancel+"?order_id=o1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"order_id":"o1","status":"WAITING","paid":false}`, w.Body.String())
}

func TestRedirect_MissingOrderID(t *testing.T) {
	r, _ := newTestRouter(t)
	w := perform(r, http.MethodGet, testPaths.Success, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Health
// =============================================================================

func TestHealthEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/readyz", "", nil).Code)

	notReady := NewRouter(RouterConfig{
		Paths:          testPaths,
		ReadinessCheck: func(context.Context) error { return errors.New("mysql: connection refused") },
	})
	assert.Equal(t, http.StatusServiceUnavailable, perform(notReady.Engine(), http.MethodGet, "/readyz", "", nil).Code)
}
