// Package reconcile отвечает на вопрос «оплачен ли заказ», опрашивая процессор.
//
// Алгоритм двойной пробы:
//  1. get_invoices(order, status=1). Пустой массив означает, что «успешных»
//     фильтр процессора исключил последний ожидающий счёт: FINISHED сразу.
//  2. get_invoices(order, status=0). Вернулся счёт: классифицируем его.
//  3. Иначе get_invoices(order) без пробы и классификация единственной записи.
//  4. Ничего не удалось: UNKNOWN, который в двухзначном ответе становится WAITING.
//
// Пробы выполняются последовательно: вторая нужна только если первая не дала ответа.
package reconcile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/metrics"
	"example.com/crypto-checkout/pkg/tracing"
	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/processor"
)

// InvoiceLookup — операция get_invoices. Реализуется processor.Gateway.
type InvoiceLookup interface {
	Lookup(ctx context.Context, q processor.Query) (*processor.LookupResult, error)
}

// Confidence — насколько исход опирается на прямые данные процессора.
type Confidence string

const (
	// ConfidenceHigh — исход получен классификацией конкретной записи счёта.
	ConfidenceHigh Confidence = "high"
	// ConfidenceLow — исход опирается на эвристику пустого массива, на
	// противоречивые пробы или данных нет совсем.
	ConfidenceLow Confidence = "low"
)

// Результаты одного шага сверки.
const (
	ResultInvoices = "invoices"
	ResultEmpty    = "empty"
	ResultError    = "error"
)

// Evidence — один шаг сверки для диагностики.
type Evidence struct {
	Step   string `json:"step"` // probe_successful | probe_waiting | unprobed
	Probe  *int   `json:"probe,omitempty"`
	Result string `json:"result"`
	Shape  string `json:"shape,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Detailed — развёрнутый результат сверки.
type Detailed struct {
	OrderID    string                `json:"order_id"`
	InvoiceID  string                `json:"invoice_id,omitempty"`
	Outcome    domain.PaymentOutcome `json:"outcome"`
	Confidence Confidence            `json:"confidence"`
	Evidence   []Evidence            `json:"evidence"`
	Invoice    *domain.Invoice       `json:"invoice,omitempty"`
}

// Paid сообщает, подтверждена ли оплата.
func (d *Detailed) Paid() bool {
	return d.Outcome.IsPaid()
}

// Engine выполняет сверку статуса заказа.
type Engine struct {
	lookup    InvoiceLookup
	dualProbe bool
	tracer    trace.Tracer
}

// Option настраивает Engine.
type Option func(*Engine)

// WithDualProbe включает или отключает двойную пробу. По умолчанию включена.
func WithDualProbe(enabled bool) Option {
	return func(e *Engine) { e.dualProbe = enabled }
}

// NewEngine создаёт Engine.
func NewEngine(lookup InvoiceLookup, opts ...Option) *Engine {
	e := &Engine{
		lookup:    lookup,
		dualProbe: true,
		tracer:    tracing.Tracer("reconcile"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile возвращает двухзначный исход: FINISHED или WAITING.
// Ошибка возможна только при пустом orderID.
func (e *Engine) Reconcile(ctx context.Context, orderID string) (domain.PaymentOutcome, error) {
	if orderID == "" {
		return domain.OutcomeWaiting, domain.NewValidationError("order_id", domain.ErrMissingIdentifier)
	}

	d, err := e.ReconcileDetailed(ctx, orderID, "")
	if err != nil {
		return domain.OutcomeWaiting, err
	}
	return d.Outcome.TwoState(), nil
}

// ReconcileDetailed возвращает исход со свидетельствами и уверенностью.
// Сбои процессора не возвращаются ошибкой: они попадают в Evidence, а исход
// становится UNKNOWN. Ошибка только *domain.ValidationError.
func (e *Engine) ReconcileDetailed(ctx context.Context, orderID, invoiceID string) (*Detailed, error) {
	q := processor.Query{OrderID: orderID, InvoiceID: invoiceID}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx = logger.WithOrder(ctx, orderID, invoiceID)
	ctx, span := e.tracer.Start(ctx, "reconcile.detailed", trace.WithAttributes(
		attribute.String("order_id", orderID),
		attribute.String("invoice_id", invoiceID),
		attribute.Bool("dual_probe", e.dualProbe),
	))
	defer span.End()

	r := &run{engine: e, query: q, d: &Detailed{OrderID: orderID, InvoiceID: invoiceID}}

	resolved := false
	if e.dualProbe {
		resolved = r.dualProbe(ctx)
	}
	if !resolved {
		r.unprobed(ctx)
	}

	d := r.d
	if r.disagreement {
		d.Confidence = ConfidenceLow
	}

	span.SetAttributes(
		attribute.String("outcome", string(d.Outcome)),
		attribute.String("confidence", string(d.Confidence)),
	)
	metrics.ReconcileOutcomes.WithLabelValues(string(d.Outcome), string(d.Confidence)).Inc()

	logger.Ctx(ctx).Info().
		Str("outcome", string(d.Outcome)).
		Str("confidence", string(d.Confidence)).
		Int("steps", len(d.Evidence)).
		Msg("Сверка статуса завершена")

	return d, nil
}

// run — состояние одной сверки.
type run struct {
	engine       *Engine
	query        processor.Query
	d            *Detailed
	disagreement bool
}

func (r *run) step(ctx context.Context, name string, q processor.Query) (*processor.LookupResult, error) {
	ctx, span := r.engine.tracer.Start(ctx, "reconcile."+name)
	defer span.End()

	res, err := r.engine.lookup.Lookup(ctx, q)

	ev := Evidence{Step: name}
	if q.Probe != nil {
		p := int(*q.Probe)
		ev.Probe = &p
	}
	switch {
	case err != nil:
		ev.Result = ResultError
		ev.Detail = err.Error()
		span.RecordError(err)
	case res.IsEmpty():
		ev.Result = ResultEmpty
		ev.Shape = string(res.Shape)
	default:
		ev.Result = ResultInvoices
		ev.Shape = string(res.Shape)
		ev.Detail = fmt.Sprintf("записей: %d", len(res.Invoices))
	}
	r.d.Evidence = append(r.d.Evidence, ev)
	span.SetAttributes(attribute.String("result", ev.Result))

	return res, err
}

// dualProbe возвращает true, если исход установлен пробами.
func (r *run) dualProbe(ctx context.Context) bool {
	successful, errSuccessful := r.step(ctx, "probe_successful", r.query.WithProbe(processor.ProbeSuccessful))
	if errSuccessful == nil && successful.IsEmptyMarker() {
		r.d.Outcome = domain.OutcomeFinished
		r.d.Confidence = ConfidenceLow
		r.d.Evidence[len(r.d.Evidence)-1].Detail = "пустой ответ под пробой успешных: эвристика оплаты"
		return true
	}

	waiting, errWaiting := r.step(ctx, "probe_waiting", r.query.WithProbe(processor.ProbeWaiting))
	if errWaiting == nil && !waiting.IsEmpty() {
		inv := waiting.Pick(r.query.InvoiceID)
		outcome := inv.Status
		if outcome == domain.OutcomeUnknown {
			// запись нашлась под фильтром ожидающих
			outcome = domain.OutcomeWaiting
		}
		if outcome == domain.OutcomeFinished {
			r.flagDisagreement(ctx, "проба ожидающих вернула оплаченный счёт")
		}
		r.d.Outcome = outcome
		r.d.Confidence = ConfidenceHigh
		r.d.Invoice = inv
		return true
	}

	if errSuccessful == nil && errWaiting == nil && !successful.IsEmpty() {
		// проба успешных вернула счета, проба ожидающих пуста
		r.flagDisagreement(ctx, "обе пробы не подтвердили ни оплату, ни ожидание")
	}
	return false
}

func (r *run) unprobed(ctx context.Context) {
	res, err := r.step(ctx, "unprobed", r.query)
	if err != nil || res.IsEmpty() {
		r.d.Outcome = domain.OutcomeUnknown
		r.d.Confidence = ConfidenceLow
		return
	}

	inv := res.Pick(r.query.InvoiceID)
	r.d.Invoice = inv
	r.d.Outcome = inv.Status
	r.d.Confidence = ConfidenceHigh
	if inv.Status == domain.OutcomeUnknown {
		r.d.Confidence = ConfidenceLow
	}
}

func (r *run) flagDisagreement(ctx context.Context, reason string) {
	r.disagreement = true
	metrics.ProbeDisagreements.Inc()
	logger.Ctx(ctx).Warn().Str("reason", reason).Msg("Расхождение проб статуса")
}
