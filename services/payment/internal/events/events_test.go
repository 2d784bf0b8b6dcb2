package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/crypto-checkout/pkg/kafka"
	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/outbox"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

type MockRecordWriter struct {
	mock.Mock
}

func (m *MockRecordWriter) Create(ctx context.Context, record *outbox.Record) error {
	return m.Called(ctx, record).Error(0)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "payment.finished", EventType(domain.OutcomeFinished))
	assert.Equal(t, "payment.waiting", EventType(domain.OutcomeWaiting))
}

func TestOutboxHooks_WritesOutcomeEvent(t *testing.T) {
	paid := decimal.RequireFromString("96")
	inv := &domain.Invoice{ID: "i1", OrderID: "o1", StatusLabel: "confirming", PaidAmount: &paid, PaidCurrency: "USDT"}

	var saved *outbox.Record
	repo := new(MockRecordWriter)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*outbox.Record")).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*outbox.Record)
	}).Return(nil).Once()

	hooks := NewOutboxHooks(NewWriter(repo))
	ctx := logger.NewContextWithIDs(context.Background(), "trace-1", "corr-1")
	require.NoError(t, hooks.OnFinished(ctx, inv))

	require.NotNil(t, saved)
	assert.Equal(t, kafka.TopicPaymentOutcomes, saved.Topic)
	assert.Equal(t, "payment.finished", saved.EventType)
	assert.Equal(t, "o1", saved.AggregateID)
	assert.Equal(t, "o1", saved.MessageKey)
	assert.Equal(t, SourceWebhook, saved.Headers["source"])
	assert.Equal(t, "trace-1", saved.Headers["trace_id"])

	var ev OutcomeEvent
	require.NoError(t, json.Unmarshal(saved.Payload, &ev))
	assert.Equal(t, domain.OutcomeFinished, ev.Outcome)
	assert.True(t, ev.Paid)
	assert.Equal(t, "i1", ev.InvoiceID)
	require.NotNil(t, ev.PaidAmount)
	assert.True(t, ev.PaidAmount.Equal(paid))
}

func TestOutboxHooks_EachHookWritesItsOutcome(t *testing.T) {
	inv := &domain.Invoice{ID: "i1", OrderID: "o1"}

	tests := []struct {
		name string
		call func(h *OutboxHooks) error
		want string
	}{
		{name: "waiting", call: func(h *OutboxHooks) error { return h.OnWaiting(context.Background(), inv) }, want: "payment.waiting"},
		{name: "confirming", call: func(h *OutboxHooks) error { return h.OnConfirming(context.Background(), inv) }, want: "payment.confirming"},
		{name: "failed", call: func(h *OutboxHooks) error { return h.OnFailed(context.Background(), inv) }, want: "payment.failed"},
		{name: "refunded", call: func(h *OutboxHooks) error { return h.OnRefunded(context.Background(), inv) }, want: "payment.refunded"},
		{name: "expired", call: func(h *OutboxHooks) error { return h.OnExpired(context.Background(), inv) }, want: "payment.expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRecordWriter)
			repo.On("Create", mock.Anything, mock.MatchedBy(func(r *outbox.Record) bool {
				return r.EventType == tt.want
			})).Return(nil).Once()

			require.NoError(t, tt.call(NewOutboxHooks(NewWriter(repo))))
			repo.AssertExpectations(t)
		})
	}
}

func TestWriter_RepositoryError(t *testing.T) {
	repo := new(MockRecordWriter)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("deadlock")).Once()

	err := NewWriter(repo).Write(context.Background(), OutcomeEvent{OrderID: "o1", Outcome: domain.OutcomeFailed})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "payment.failed")
}
