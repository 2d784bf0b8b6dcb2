// Package recheck обрабатывает команды повторной сверки из топика payment.recheck.
package recheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"example.com/crypto-checkout/pkg/kafka"
	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/events"
	"example.com/crypto-checkout/services/payment/internal/reconcile"
)

// ErrUnresolved — процессор не дал данных для исхода, команда будет повторена.
var ErrUnresolved = errors.New("исход сверки не определён")

// Command — команда повторной сверки.
type Command struct {
	OrderID   string `json:"order_id"`
	InvoiceID string `json:"invoice_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Reconciler выполняет развёрнутую сверку. Реализуется reconcile.Engine.
type Reconciler interface {
	ReconcileDetailed(ctx context.Context, orderID, invoiceID string) (*reconcile.Detailed, error)
}

// EventWriter сохраняет событие исхода. Реализуется events.Writer.
type EventWriter interface {
	Write(ctx context.Context, ev events.OutcomeEvent) error
}

// Handler обрабатывает команды.
type Handler struct {
	engine Reconciler
	events EventWriter
}

// NewHandler создаёт Handler.
func NewHandler(engine Reconciler, writer EventWriter) *Handler {
	return &Handler{engine: engine, events: writer}
}

// Handle реализует kafka.MessageHandler. Ошибка приводит к повтору и затем к DLQ.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) error {
	var cmd Command
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return fmt.Errorf("ошибка разбора команды сверки: %w", err)
	}
	if cmd.OrderID == "" && len(msg.Key) > 0 {
		cmd.OrderID = string(msg.Key)
	}

	ctx = logger.WithOrder(ctx, cmd.OrderID, cmd.InvoiceID)
	logger.Ctx(ctx).Debug().Str("reason", cmd.Reason).Msg("Получена команда повторной сверки")

	d, err := h.engine.ReconcileDetailed(ctx, cmd.OrderID, cmd.InvoiceID)
	if err != nil {
		return err
	}
	if d.Outcome == domain.OutcomeUnknown {
		return ErrUnresolved
	}

	inv := d.Invoice
	if inv == nil {
		inv = &domain.Invoice{ID: cmd.InvoiceID, OrderID: cmd.OrderID, Status: d.Outcome}
	}
	ev := events.NewOutcomeEvent(inv, d.Outcome, events.SourceRecheck)
	ev.OrderID = cmd.OrderID
	ev.Confidence = string(d.Confidence)

	if err := h.events.Write(ctx, ev); err != nil {
		return err
	}

	logger.Ctx(ctx).Info().
		Str("outcome", string(d.Outcome)).
		Str("confidence", string(d.Confidence)).
		Msg("Повторная сверка выполнена")
	return nil
}

// Run читает команды до отмены ctx. Каждая команда повторяется до maxRetries
// раз, затем уходит в DLQ через Consumer.
func Run(ctx context.Context, consumer *kafka.Consumer, h *Handler, maxRetries int) error {
	err := consumer.ConsumeWithRetry(ctx, h.Handle, maxRetries)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
