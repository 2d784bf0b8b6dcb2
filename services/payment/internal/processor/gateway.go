package processor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/metrics"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

// Gateway — типизированный доступ к операциям процессора.
type Gateway struct {
	client     *Client
	classifier domain.Classifier
}

// NewGateway создаёт Gateway.
func NewGateway(client *Client, classifier domain.Classifier) *Gateway {
	return &Gateway{client: client, classifier: classifier}
}

// CreateRequest — поля запроса create_invoice.
type CreateRequest struct {
	PriceAmount   decimal.Decimal
	PriceCurrency string
	OrderID       string
	Description   string
	CustomerEmail string
	CallbackURL   string
	SuccessURL    string
	CancelURL     string
}

func (r CreateRequest) body() map[string]any {
	body := map[string]any{
		"price_amount":     r.PriceAmount.String(),
		"price_currency":   r.PriceCurrency,
		"order_id":         r.OrderID,
		"ipn_callback_url": r.CallbackURL,
		"success_url":      r.SuccessURL,
		"cancel_url":       r.CancelURL,
	}
	if r.Description != "" {
		body["order_description"] = r.Description
	}
	if r.CustomerEmail != "" {
		body["customer_email"] = r.CustomerEmail
	}
	return body
}

// CreateResult — нормализованный ответ create_invoice.
// ShapeResult: заполнен Invoice. ShapeMessageURL: заполнен только PaymentURL.
type CreateResult struct {
	Shape      ResponseShape
	Invoice    *domain.Invoice
	PaymentURL string
	Raw        []byte
}

func decodeCreate(raw []byte, c domain.Classifier) (*CreateResult, error) {
	env, err := parseEnvelope(OpCreateInvoice, raw)
	if err != nil {
		return nil, err
	}

	switch {
	case env.hasResult():
		records, ok := decodeRecords(env.result)
		if !ok || len(records) != 1 {
			return nil, &domain.UnrecognizedShapeError{Op: OpCreateInvoice, Reason: "result не является объектом счёта", Raw: raw}
		}
		inv := domain.InvoiceFromFields(records[0], c)
		return &CreateResult{Shape: ShapeResult, Invoice: inv, PaymentURL: inv.PaymentURL, Raw: raw}, nil

	case env.succeeded():
		msg, isString := env.messageString()
		if isString && isAbsoluteURL(msg) {
			return &CreateResult{Shape: ShapeMessageURL, PaymentURL: msg, Raw: raw}, nil
		}
		return nil, &domain.UnrecognizedShapeError{Op: OpCreateInvoice, Reason: "message не содержит URL оплаты", Raw: raw}

	case env.failed():
		return nil, env.rejection(OpCreateInvoice)
	}

	return nil, &domain.UnrecognizedShapeError{Op: OpCreateInvoice, Reason: "нет ни result, ни status=success", Raw: raw}
}

// CreateInvoice отправляет create_invoice один раз, без повторов.
func (g *Gateway) CreateInvoice(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	raw, err := g.client.post(ctx, OpCreateInvoice, g.client.cfg.CreatePath, req.body())
	if err != nil {
		return nil, err
	}

	res, err := decodeCreate(raw, g.classifier)
	if err != nil {
		g.recordShapeError(ctx, OpCreateInvoice, err)
		return nil, err
	}
	return res, nil
}

func (g *Gateway) recordShapeError(ctx context.Context, op string, err error) {
	var shapeErr *domain.UnrecognizedShapeError
	if !errors.As(err, &shapeErr) {
		return
	}
	metrics.ProcessorCalls.WithLabelValues(op, "bad_shape").Inc()
	logger.Ctx(ctx).Error().
		Str("op", op).
		Str("reason", shapeErr.Reason).
		Bytes("raw", shapeErr.Raw).
		Msg("Процессор вернул ответ неизвестной формы")
}
