// Package issuer выставляет счета: валидирует запрос, строит адреса
// возврата через промежуточные endpoints сервиса и приводит ответ
// процессора к каноническому счёту.
package issuer

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/tracing"
	"example.com/crypto-checkout/services/payment/internal/config"
	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/processor"
)

// InvoiceCreator — операция create_invoice. Реализуется processor.Gateway.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req processor.CreateRequest) (*processor.CreateResult, error)
}

// RedirectSigner выпускает токен, привязывающий адрес возврата к заказу.
type RedirectSigner interface {
	Sign(orderID, redirect string) (string, error)
}

// Параметры запроса промежуточных endpoints.
const (
	ParamOrderID  = "order_id"
	ParamRedirect = "redirect"
	ParamToken    = "token"
)

// Request — запрос на выставление счёта. Пустые строки означают «не задано».
//
// У процессора один адрес возврата при отказе от оплаты. FailureURL служит
// запасным значением для CancelURL; если заданы оба, они должны совпадать.
type Request struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	OrderID       string          `json:"order_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	SuccessURL    string          `json:"success_url,omitempty"`
	FailureURL    string          `json:"failure_url,omitempty"`
	CancelURL     string          `json:"cancel_url,omitempty"`
}

// Validate проверяет запрос до любого сетевого вызова.
func (r Request) Validate() error {
	if !r.Amount.IsPositive() {
		return domain.NewValidationError("amount", domain.ErrInvalidAmount)
	}
	if strings.TrimSpace(r.Currency) == "" {
		return domain.NewValidationError("currency", domain.ErrMissingCurrency)
	}
	for field, raw := range map[string]string{
		"success_url": r.SuccessURL,
		"failure_url": r.FailureURL,
		"cancel_url":  r.CancelURL,
	} {
		if raw != "" && !IsAbsoluteURL(raw) {
			return domain.NewValidationError(field, domain.ErrInvalidRedirectURL)
		}
	}
	if r.FailureURL != "" && r.CancelURL != "" && r.FailureURL != r.CancelURL {
		return domain.NewValidationError("failure_url", domain.ErrConflictingRedirects)
	}
	return nil
}

// IsAbsoluteURL — абсолютный http(s) URL с хостом.
func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Result — выставленный счёт и адреса, переданные процессору.
type Result struct {
	Invoice     *domain.Invoice         `json:"invoice"`
	PaymentURL  string                  `json:"payment_url"`
	Shape       processor.ResponseShape `json:"shape"`
	CallbackURL string                  `json:"callback_url"`
	SuccessURL  string                  `json:"success_url"`
	CancelURL   string                  `json:"cancel_url"`
}

// Issuer выставляет счета.
type Issuer struct {
	creator    InvoiceCreator
	signer     RedirectSigner
	site       config.SiteConfig
	invoiceTTL time.Duration
	tracer     trace.Tracer

	now   func() time.Time
	newID func() string
}

// New создаёт Issuer. invoiceTTL — срок жизни синтезированного счёта.
func New(creator InvoiceCreator, signer RedirectSigner, site config.SiteConfig, invoiceTTL time.Duration) *Issuer {
	if invoiceTTL <= 0 {
		invoiceTTL = 24 * time.Hour
	}
	return &Issuer{
		creator:    creator,
		signer:     signer,
		site:       site,
		invoiceTTL: invoiceTTL,
		tracer:     tracing.Tracer("issuer"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// CreateInvoice выставляет счёт. Запрос к процессору выполняется ровно один раз.
// Ошибки: *domain.ValidationError, *domain.TransportError, *domain.UnrecognizedShapeError.
func (i *Issuer) CreateInvoice(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		orderID = i.newID()
	}
	ctx = logger.WithOrder(ctx, orderID, "")

	ctx, span := i.tracer.Start(ctx, "issuer.create_invoice", trace.WithAttributes(
		attribute.String("order_id", orderID),
		attribute.String("currency", req.Currency),
	))
	defer span.End()

	cancelRedirect := req.CancelURL
	if cancelRedirect == "" {
		cancelRedirect = req.FailureURL
	}

	successURL, err := i.returnURL(i.site.SuccessPath, orderID, req.SuccessURL)
	if err != nil {
		return nil, err
	}
	cancelURL, err := i.returnURL(i.site.CancelPath, orderID, cancelRedirect)
	if err != nil {
		return nil, err
	}

	res := &Result{
		CallbackURL: i.site.URL(i.site.CallbackPath),
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
	}

	created, err := i.creator.CreateInvoice(ctx, processor.CreateRequest{
		PriceAmount:   req.Amount,
		PriceCurrency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		OrderID:       orderID,
		Description:   req.Description,
		CustomerEmail: req.CustomerEmail,
		CallbackURL:   res.CallbackURL,
		SuccessURL:    res.SuccessURL,
		CancelURL:     res.CancelURL,
	})
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("Ошибка выставления счёта")
		return nil, err
	}

	res.Shape = created.Shape
	switch created.Shape {
	case processor.ShapeMessageURL:
		res.Invoice = i.synthesize(orderID, req, created.PaymentURL)
	default:
		res.Invoice = i.complete(orderID, req, created)
	}
	res.PaymentURL = res.Invoice.PaymentURL

	if res.PaymentURL == "" {
		err := &domain.UnrecognizedShapeError{Op: processor.OpCreateInvoice, Reason: "в ответе нет URL оплаты", Raw: created.Raw}
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("invoice_id", res.Invoice.ID), attribute.String("shape", string(res.Shape)))
	logger.Ctx(ctx).Info().
		Str("invoice_id", res.Invoice.ID).
		Str("shape", string(res.Shape)).
		Bool("synthesized", res.Invoice.Synthesized).
		Msg("Счёт выставлен")

	return res, nil
}

// returnURL строит адрес возврата для процессора. Адрес вызывающей стороны
// передаётся через промежуточный endpoint вместе с токеном.
func (i *Issuer) returnURL(endpoint, orderID, redirect string) (string, error) {
	q := url.Values{}
	q.Set(ParamOrderID, orderID)

	if redirect != "" {
		token, err := i.signer.Sign(orderID, redirect)
		if err != nil {
			return "", fmt.Errorf("ошибка подписи адреса возврата: %w", err)
		}
		q.Set(ParamRedirect, redirect)
		q.Set(ParamToken, token)
	}

	return i.site.URL(endpoint) + "?" + q.Encode(), nil
}

// synthesize собирает счёт, когда процессор вернул только URL оплаты.
func (i *Issuer) synthesize(orderID string, req Request, paymentURL string) *domain.Invoice {
	now := i.now().UTC()
	expires := now.Add(i.invoiceTTL)
	amount := req.Amount

	id := lastSegment(paymentURL)
	if id == "" {
		id = orderID
	}

	return &domain.Invoice{
		ID:            id,
		OrderID:       orderID,
		Status:        domain.OutcomeWaiting,
		PriceAmount:   &amount,
		PriceCurrency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		PaymentURL:    paymentURL,
		CreatedAt:     &now,
		ExpiresAt:     &expires,
		Synthesized:   true,
	}
}

// complete дополняет счёт процессора данными запроса.
func (i *Issuer) complete(orderID string, req Request, created *processor.CreateResult) *domain.Invoice {
	inv := *created.Invoice
	if inv.OrderID == "" {
		inv.OrderID = orderID
	}
	if inv.PriceAmount == nil {
		amount := req.Amount
		inv.PriceAmount = &amount
		inv.PriceCurrency = strings.ToUpper(strings.TrimSpace(req.Currency))
	}
	if inv.PaymentURL == "" {
		inv.PaymentURL = created.PaymentURL
	}
	if inv.Status == domain.OutcomeUnknown {
		inv.Status = domain.OutcomeWaiting
	}
	if inv.ExpiresAt == nil {
		expires := i.now().UTC().Add(i.invoiceTTL)
		inv.ExpiresAt = &expires
	}
	return &inv
}

func lastSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
