// Package notification обрабатывает входящие уведомления процессора:
// проверяет подлинность, нормализует поля, классифицирует исход и вызывает
// ровно один hook на уведомление.
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/metrics"
	"example.com/crypto-checkout/pkg/tracing"
	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/processor"
)

// Hooks — побочные эффекты по исходу. Реализуются вызывающей стороной.
type Hooks interface {
	OnWaiting(ctx context.Context, inv *domain.Invoice) error
	OnConfirming(ctx context.Context, inv *domain.Invoice) error
	OnFinished(ctx context.Context, inv *domain.Invoice) error
	OnFailed(ctx context.Context, inv *domain.Invoice) error
	OnRefunded(ctx context.Context, inv *domain.Invoice) error
	OnExpired(ctx context.Context, inv *domain.Invoice) error
}

// Имена hooks в результате обработки.
const (
	HookWaiting    = "on_waiting"
	HookConfirming = "on_confirming"
	HookFinished   = "on_finished"
	HookFailed     = "on_failed"
	HookRefunded   = "on_refunded"
	HookExpired    = "on_expired"
)

// InvoiceLookup — повторный запрос счёта для уведомлений с исходом UNKNOWN.
type InvoiceLookup interface {
	Lookup(ctx context.Context, q processor.Query) (*processor.LookupResult, error)
}

// Result — итог обработки уведомления.
type Result struct {
	Outcome   domain.PaymentOutcome `json:"outcome"`
	Hook      string                `json:"hook"`
	Duplicate bool                  `json:"duplicate"`
	Scheme    string                `json:"-"`
	Invoice   *domain.Invoice       `json:"-"`
}

// Options — необязательные зависимости Handler.
type Options struct {
	Authenticators   []Authenticator
	RequireSignature bool
	Lookup           InvoiceLookup
	Dedup            Deduplicator
}

// Handler обрабатывает уведомления.
type Handler struct {
	classifier domain.Classifier
	hooks      Hooks
	opts       Options
	tracer     trace.Tracer
}

// NewHandler создаёт Handler.
func NewHandler(classifier domain.Classifier, hooks Hooks, opts Options) *Handler {
	return &Handler{
		classifier: classifier,
		hooks:      hooks,
		opts:       opts,
		tracer:     tracing.Tracer("notification"),
	}
}

// Handle обрабатывает одно уведомление.
// Ошибки: *domain.ValidationError, *domain.AuthenticityError, ошибка hook.
func (h *Handler) Handle(ctx context.Context, req Request) (*Result, error) {
	ctx, span := h.tracer.Start(ctx, "notification.handle")
	defer span.End()

	f, err := domain.DecodeFields(req.Body)
	if err != nil {
		metrics.WebhookNotifications.WithLabelValues("", "rejected").Inc()
		return nil, domain.NewValidationError("body", fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err))
	}

	scheme, err := authenticate(ctx, h.opts.Authenticators, h.opts.RequireSignature, req, f)
	if err != nil {
		metrics.WebhookNotifications.WithLabelValues("", "unauthenticated").Inc()
		logger.Ctx(ctx).Warn().Err(err).Msg("Уведомление не прошло проверку подлинности")
		return nil, err
	}

	orderID := f.String(domain.OrderIDAliases...)
	invoiceID := f.String(domain.InvoiceIDAliases...)
	switch {
	case orderID == "":
		metrics.WebhookNotifications.WithLabelValues("", "rejected").Inc()
		return nil, domain.NewValidationError("order_id", domain.ErrMissingIdentifier)
	case invoiceID == "":
		metrics.WebhookNotifications.WithLabelValues("", "rejected").Inc()
		return nil, domain.NewValidationError("invoice_id", domain.ErrMissingIdentifier)
	}

	ctx = logger.WithOrder(ctx, orderID, invoiceID)
	inv := domain.InvoiceFromFields(f, h.classifier)
	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("invoice_id", invoiceID),
		attribute.String("classified", string(inv.Status)),
	)

	logger.Ctx(ctx).Debug().
		Str("scheme", scheme).
		Str("label", inv.StatusLabel).
		Str("classified", string(inv.Status)).
		Msg("Уведомление принято")

	inv = h.resolveUnknown(ctx, inv)

	res, err := h.dispatch(ctx, inv)
	if err != nil {
		metrics.WebhookNotifications.WithLabelValues(string(inv.Status), "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	res.Scheme = scheme

	result := "dispatched"
	if res.Duplicate {
		result = "duplicate"
	}
	metrics.WebhookNotifications.WithLabelValues(string(res.Outcome), result).Inc()
	span.SetAttributes(attribute.String("hook", res.Hook), attribute.Bool("duplicate", res.Duplicate))

	return res, nil
}

// resolveUnknown делает одну попытку уточнить исход UNKNOWN запросом счёта.
// Если исход так и не определён, счёт считается ожидающим.
func (h *Handler) resolveUnknown(ctx context.Context, inv *domain.Invoice) *domain.Invoice {
	if inv.Status != domain.OutcomeUnknown {
		return inv
	}

	if h.opts.Lookup != nil {
		res, err := h.opts.Lookup.Lookup(ctx, processor.Query{OrderID: inv.OrderID, InvoiceID: inv.ID})
		switch {
		case err != nil:
			logger.Ctx(ctx).Warn().Err(err).Msg("Не удалось уточнить исход уведомления у процессора")
		case !res.IsEmpty():
			if fresh := res.Pick(inv.ID); fresh != nil && fresh.Status != domain.OutcomeUnknown {
				logger.Ctx(ctx).Info().
					Str("outcome", string(fresh.Status)).
					Msg("Исход уведомления уточнён по данным процессора")
				return mergeInvoice(inv, fresh)
			}
		}
	}

	waiting := *inv
	waiting.Status = domain.OutcomeWaiting
	return &waiting
}

// mergeInvoice дополняет уведомление данными процессора, идентификаторы
// уведомления сохраняются.
func mergeInvoice(notified, fresh *domain.Invoice) *domain.Invoice {
	merged := *fresh
	merged.ID = notified.ID
	merged.OrderID = notified.OrderID
	if merged.PaidAmount == nil {
		merged.PaidAmount = notified.PaidAmount
		merged.PaidCurrency = notified.PaidCurrency
	}
	if merged.PriceAmount == nil {
		merged.PriceAmount = notified.PriceAmount
		merged.PriceCurrency = notified.PriceCurrency
	}
	return &merged
}

// dispatch выбирает hook по исходу и вызывает его не более одного раза на переход.
func (h *Handler) dispatch(ctx context.Context, inv *domain.Invoice) (*Result, error) {
	outcome := inv.Status

	if outcome == domain.OutcomeConfirming && h.sufficientByFiat(inv) {
		logger.Ctx(ctx).Info().Msg("Сумма в фиате достаточна, подтверждение засчитано как оплата")
		escalated := *inv
		escalated.Status = domain.OutcomeFinished
		inv, outcome = &escalated, domain.OutcomeFinished
	}

	hook, call := h.hookFor(outcome)
	res := &Result{Outcome: outcome, Hook: hook, Invoice: inv}

	if !claim(ctx, h.opts.Dedup, inv.ID, outcome) {
		logger.Ctx(ctx).Info().Str("outcome", string(outcome)).Msg("Повторное уведомление, hook не вызывается")
		res.Duplicate = true
		return res, nil
	}

	if err := call(ctx, inv); err != nil {
		if h.opts.Dedup != nil {
			if relErr := h.opts.Dedup.Release(ctx, inv.ID, outcome); relErr != nil {
				logger.Ctx(ctx).Warn().Err(relErr).Msg("Не удалось снять отметку дедупликации")
			}
		}
		return nil, fmt.Errorf("ошибка %s: %w", hook, err)
	}

	logger.Ctx(ctx).Info().Str("outcome", string(outcome)).Str("hook", hook).Msg("Уведомление обработано")
	return res, nil
}

// sufficientByFiat — дополнительная проверка суммы в валюте цены.
func (h *Handler) sufficientByFiat(inv *domain.Invoice) bool {
	if inv.PriceAmount == nil || inv.PaidFiat == nil {
		return false
	}
	return h.classifier.Amounts().IsSufficient(*inv.PriceAmount, inv.PaidFiat)
}

func (h *Handler) hookFor(o domain.PaymentOutcome) (string, func(context.Context, *domain.Invoice) error) {
	switch o {
	case domain.OutcomeConfirming:
		return HookConfirming, h.hooks.OnConfirming
	case domain.OutcomeFinished:
		return HookFinished, h.hooks.OnFinished
	case domain.OutcomeFailed:
		return HookFailed, h.hooks.OnFailed
	case domain.OutcomeRefunded:
		return HookRefunded, h.hooks.OnRefunded
	case domain.OutcomeExpired:
		return HookExpired, h.hooks.OnExpired
	default:
		return HookWaiting, h.hooks.OnWaiting
	}
}

// IsClientError сообщает, что уведомление отклонено из-за самого запроса.
func IsClientError(err error) bool {
	var (
		verr *domain.ValidationError
		aerr *domain.AuthenticityError
	)
	return errors.As(err, &verr) || errors.As(err, &aerr)
}
