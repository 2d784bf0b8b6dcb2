package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/crypto-checkout/services/payment/internal/config"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

// =============================================================================
// Вспомогательные функции
// =============================================================================

type capturedRequest struct {
	path string
	body map[string]any
}

// newTestGateway поднимает фейковый процессор, отвечающий status/body.
func newTestGateway(t *testing.T, status int, body string) (*Gateway, func() []capturedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		captured = append(captured, capturedRequest{path: r.URL.Path, body: req})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return gatewayFor(srv.URL, nil), func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func gatewayFor(baseURL string, httpClient *http.Client) *Gateway {
	cfg := config.ProcessorConfig{
		BaseURL:    baseURL,
		MerchantID: "merchant-1",
		APIKey:     "key-1",
		CreatePath: "/create_invoice",
		LookupPath: "/get_invoices",
		Timeout:    2 * time.Second,
	}
	return NewGateway(NewClient(cfg, httpClient), domain.NewClassifier(domain.DefaultAmountReconciler()))
}

// =============================================================================
// Lookup
// =============================================================================

func TestGateway_Lookup_Shapes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantKind   LookupKind
		wantShape  ResponseShape
		wantCount  int
		wantMarker bool
	}{
		{
			name:      "result с объектом",
			body:      `{"result":{"id":"inv-1","order_id":"o1","status":"waiting","price_amount":"100"}}`,
			wantKind:  LookupInvoices,
			wantShape: ShapeResult,
			wantCount: 1,
		},
		{
			name:      "result со списком",
			body:      `{"result":[{"id":"inv-1","order_id":"o1"},{"id":"inv-2","order_id":"o1"}]}`,
			wantKind:  LookupInvoices,
			wantShape: ShapeResult,
			wantCount: 2,
		},
		{
			name:      "result с обёрткой invoices",
			body:      `{"result":{"invoices":[{"id":"inv-1","order_id":"o1"}]}}`,
			wantKind:  LookupInvoices,
			wantShape: ShapeResult,
			wantCount: 1,
		},
		{
			name:      "message закодирован строкой",
			body:      `{"status":"success","message":"[{\"id\":\"inv-1\",\"order_id\":\"o1\",\"status\":\"finished\"}]"}`,
			wantKind:  LookupInvoices,
			wantShape: ShapeEncodedMessage,
			wantCount: 1,
		},
		{
			name:       "пустой массив строкой",
			body:       `{"status":"success","message":"[]"}`,
			wantKind:   LookupEmpty,
			wantShape:  ShapeEmptyMarker,
			wantMarker: true,
		},
		{
			name:      "пустой массив в result",
			body:      `{"result":[]}`,
			wantKind:  LookupEmpty,
			wantShape: ShapeResult,
		},
		{
			name:      "пустой список invoices в result",
			body:      `{"result":{"invoices":[]}}`,
			wantKind:  LookupEmpty,
			wantShape: ShapeResult,
		},
		{
			name:      "пустой data в закодированном message",
			body:      `{"status":"success","message":"{\"data\":[]}"}`,
			wantKind:  LookupEmpty,
			wantShape: ShapeEncodedMessage,
		},
		{
			name:      "message пустым массивом, не строкой",
			body:      `{"status":"success","message":[]}`,
			wantKind:  LookupEmpty,
			wantShape: ShapeEncodedMessage,
		},
		{
			name:      "message уже объект",
			body:      `{"status":"success","message":{"id":"inv-9","order_id":"o1"}}`,
			wantKind:  LookupInvoices,
			wantShape: ShapeEncodedMessage,
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGateway(t, http.StatusOK, tt.body)

			res, err := g.Lookup(context.Background(), Query{OrderID: "o1"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantShape, res.Shape)
			assert.Len(t, res.Invoices, tt.wantCount)
			assert.Equal(t, tt.wantMarker, res.IsEmptyMarker(), "маркером оплаты считается только message \"[]\"")
			assert.Equal(t, tt.wantKind == LookupEmpty, res.IsEmpty())
		})
	}
}

func TestGateway_Lookup_EmptyMarkerUnderSuccessfulProbe(t *testing.T) {
	g, captured := newTestGateway(t, http.StatusOK, `{"status":"success","message":"[]"}`)

	res, err := g.Lookup(context.Background(), Query{OrderID: "o1"}.WithProbe(ProbeSuccessful))
	require.NoError(t, err, "пустой массив не является ошибкой «не найдено»")
	assert.True(t, res.IsEmptyMarker())

	require.Len(t, captured(), 1)
	req := captured()[0]
	assert.Equal(t, "/get_invoices", req.path)
	assert.Equal(t, "o1", req.body["order_id"])
	assert.EqualValues(t, 1, req.body["status"])
	assert.Equal(t, "merchant-1", req.body["merchant_id"])
	assert.Equal(t, "key-1", req.body["api_key"])
	assert.NotContains(t, req.body, "invoice_id")
}

func TestGateway_Lookup_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantShape  bool
		wantStatus int
	}{
		{name: "HTTP 500", status: http.StatusInternalServerError, body: `oops`, wantStatus: 500},
		{name: "HTTP 401", status: http.StatusUnauthorized, body: `{"status":"error"}`, wantStatus: 401},
		{name: "status=error", status: http.StatusOK, body: `{"status":"error","message":"invalid api key"}`},
		{name: "HTML вместо JSON", status: http.StatusOK, body: `<html>maintenance</html>`, wantShape: true},
		{name: "неизвестный конверт", status: http.StatusOK, body: `{"data":"x"}`, wantShape: true},
		{name: "message не JSON", status: http.StatusOK, body: `{"status":"success","message":"not json"}`, wantShape: true},
		{name: "список не из объектов", status: http.StatusOK, body: `{"result":[1,2]}`, wantShape: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGateway(t, tt.status, tt.body)

			res, err := g.Lookup(context.Background(), Query{InvoiceID: "inv-1"})
			require.Error(t, err)
			assert.Nil(t, res)

			if tt.wantShape {
				var shapeErr *domain.UnrecognizedShapeError
				require.True(t, errors.As(err, &shapeErr), "ожидалась UnrecognizedShapeError, получено %v", err)
				assert.Equal(t, tt.body, string(shapeErr.Raw), "сырой ответ сохраняется для диагностики")
				return
			}

			var te *domain.TransportError
			require.True(t, errors.As(err, &te), "ожидалась TransportError, получено %v", err)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
		})
	}
}

func TestGateway_Lookup_RequiresIdentifier(t *testing.T) {
	g, captured := newTestGateway(t, http.StatusOK, `{"result":[]}`)

	_, err := g.Lookup(context.Background(), Query{})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.ErrorIs(t, err, domain.ErrMissingIdentifier)
	assert.Empty(t, captured(), "без идентификаторов запрос не отправляется")
}

func TestGateway_Lookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	g := gatewayFor(srv.URL, &http.Client{Timeout: 20 * time.Millisecond})

	_, err := g.Lookup(context.Background(), Query{OrderID: "o1"})
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
}

func TestLookupResult_Pick(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	res := &LookupResult{Invoices: []*domain.Invoice{
		{ID: "a", CreatedAt: &older},
		{ID: "b", CreatedAt: &newer},
		{ID: "c"},
	}}

	assert.Equal(t, "c", res.Pick("c").ID, "совпадение по invoice_id")
	assert.Equal(t, "b", res.Pick("").ID, "самый поздний по created_at")
	assert.Equal(t, "b", res.Pick("missing").ID)
	assert.Nil(t, (&LookupResult{}).Pick(""))
}

// =============================================================================
// CreateInvoice
// =============================================================================

func TestGateway_CreateInvoice(t *testing.T) {
	req := CreateRequest{
		PriceAmount:   decimal.RequireFromString("50"),
		PriceCurrency: "USD",
		OrderID:       "o1",
		CallbackURL:   "https://pay.shop.example/api/v1/webhooks/processor",
		SuccessURL:    "https://pay.shop.example/payment/success?order_id=o1",
		CancelURL:     "https://pay.shop.example/payment/cancel?order_id=o1",
	}

	t.Run("result со счётом", func(t *testing.T) {
		g, captured := newTestGateway(t, http.StatusOK,
			`{"result":{"id":"inv-1","order_id":"o1","status":"waiting","price_amount":"50","invoice_url":"https://pay.example/i/inv-1"}}`)

		res, err := g.CreateInvoice(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ShapeResult, res.Shape)
		require.NotNil(t, res.Invoice)
		assert.Equal(t, "inv-1", res.Invoice.ID)
		assert.Equal(t, domain.OutcomeWaiting, res.Invoice.Status)
		assert.Equal(t, "https://pay.example/i/inv-1", res.PaymentURL)

		body := captured()[0].body
		assert.Equal(t, "50", body["price_amount"])
		assert.Equal(t, req.CallbackURL, body["ipn_callback_url"])
		assert.NotContains(t, body, "customer_email")
	})

	t.Run("URL в message", func(t *testing.T) {
		g, _ := newTestGateway(t, http.StatusOK, `{"status":"success","message":"https://pay.example/invoice/XyZ123"}`)

		res, err := g.CreateInvoice(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ShapeMessageURL, res.Shape)
		assert.Nil(t, res.Invoice)
		assert.Equal(t, "https://pay.example/invoice/XyZ123", res.PaymentURL)
	})

	t.Run("message без URL", func(t *testing.T) {
		g, _ := newTestGateway(t, http.StatusOK, `{"status":"success","message":"created"}`)

		_, err := g.CreateInvoice(context.Background(), req)
		var shapeErr *domain.UnrecognizedShapeError
		assert.True(t, errors.As(err, &shapeErr))
	})

	t.Run("без повторов при ошибке", func(t *testing.T) {
		g, captured := newTestGateway(t, http.StatusBadGateway, `upstream`)

		_, err := g.CreateInvoice(context.Background(), req)
		var te *domain.TransportError
		require.True(t, errors.As(err, &te))
		assert.Len(t, captured(), 1)
	})
}
