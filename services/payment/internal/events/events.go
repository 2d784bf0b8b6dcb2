// Package events записывает события об исходах платежей в outbox.
// Публикацию в Kafka выполняет outbox.Worker.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"example.com/crypto-checkout/pkg/kafka"
	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/outbox"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

// Источники событий.
const (
	SourceWebhook = "webhook"
	SourceRecheck = "recheck"
)

// OutcomeEvent — событие об исходе платежа в payment.outcomes.
type OutcomeEvent struct {
	OrderID       string                `json:"order_id"`
	InvoiceID     string                `json:"invoice_id"`
	Outcome       domain.PaymentOutcome `json:"outcome"`
	Paid          bool                  `json:"paid"`
	StatusLabel   string                `json:"status_label,omitempty"`
	Source        string                `json:"source"`
	Confidence    string                `json:"confidence,omitempty"`
	PriceAmount   *decimal.Decimal      `json:"price_amount,omitempty"`
	PriceCurrency string                `json:"price_currency,omitempty"`
	PaidAmount    *decimal.Decimal      `json:"paid_amount,omitempty"`
	PaidCurrency  string                `json:"paid_currency,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// EventType возвращает тип события для исхода, например payment.finished.
func EventType(o domain.PaymentOutcome) string {
	return "payment." + strings.ToLower(string(o))
}

// NewOutcomeEvent собирает событие из счёта. outcome может отличаться от
// inv.Status, если исход уточнён после классификации.
func NewOutcomeEvent(inv *domain.Invoice, outcome domain.PaymentOutcome, source string) OutcomeEvent {
	return OutcomeEvent{
		OrderID:       inv.OrderID,
		InvoiceID:     inv.ID,
		Outcome:       outcome,
		Paid:          outcome.IsPaid(),
		StatusLabel:   inv.StatusLabel,
		Source:        source,
		PriceAmount:   inv.PriceAmount,
		PriceCurrency: inv.PriceCurrency,
		PaidAmount:    inv.PaidAmount,
		PaidCurrency:  inv.PaidCurrency,
		OccurredAt:    time.Now().UTC(),
	}
}

// RecordWriter сохраняет запись outbox. Реализуется outbox.Repository.
type RecordWriter interface {
	Create(ctx context.Context, record *outbox.Record) error
}

// Writer пишет события об исходах в outbox.
type Writer struct {
	repo RecordWriter
}

// NewWriter создаёт Writer.
func NewWriter(repo RecordWriter) *Writer {
	return &Writer{repo: repo}
}

// Write сохраняет событие. Ключ сообщения — order_id.
func (w *Writer) Write(ctx context.Context, ev OutcomeEvent) error {
	record, err := outbox.NewRecord(ctx, kafka.TopicPaymentOutcomes, EventType(ev.Outcome), ev.OrderID, ev)
	if err != nil {
		return err
	}
	record.Headers["source"] = ev.Source

	if err := w.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("ошибка записи события %s в outbox: %w", record.EventType, err)
	}

	logger.Ctx(ctx).Debug().
		Str("outbox_id", record.ID).
		Str("event_type", record.EventType).
		Str("source", ev.Source).
		Msg("Событие исхода записано в outbox")
	return nil
}

// =============================================================================
// Hooks
// =============================================================================

// OutboxHooks реализует notification.Hooks: каждый hook пишет событие своего исхода.
type OutboxHooks struct {
	writer *Writer
}

// NewOutboxHooks создаёт OutboxHooks.
func NewOutboxHooks(writer *Writer) *OutboxHooks {
	return &OutboxHooks{writer: writer}
}

func (h *OutboxHooks) emit(ctx context.Context, inv *domain.Invoice, o domain.PaymentOutcome) error {
	return h.writer.Write(ctx, NewOutcomeEvent(inv, o, SourceWebhook))
}

func (h *OutboxHooks) OnWaiting(ctx context.Context, inv *domain.Invoice) error {
	return h.emit(ctx, inv, domain.OutcomeWaiting)
}

func (h *OutboxHooks) OnConfirming(ctx context.Context, inv *domain.Invoice) error {
	return h.emit(ctx, inv, domain.OutcomeConfirming)
}

func (h *OutboxHooks) OnFinished(ctx context.Context, inv *domain.Invoice) error {
	return h.emit(ctx, inv, domain.OutcomeFinished)
}

func (h *OutboxHooks) OnFailed(ctx context.Context, inv *domain.Invoice) error {
	return h.emit(ctx, inv, domain.OutcomeFailed)
}

func (h *OutboxHooks) OnRefunded(ctx context.Context, inv *domain.Invoice) error {
	return h.emit(ctx, inv, domain.OutcomeRefunded)
}

func (h *OutboxHooks) OnExpired(ctx context.Context, inv *domain.Invoice) error {
	return h.emit(ctx, inv, domain.OutcomeExpired)
}
