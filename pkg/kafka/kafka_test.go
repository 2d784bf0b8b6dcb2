package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/crypto-checkout/pkg/logger"
)

func TestWithRetry(t *testing.T) {
	errTemporary := errors.New("temporary")

	t.Run("успех после повторов", func(t *testing.T) {
		calls := 0
		h := WithRetry(func(ctx context.Context, msg *Message) error {
			calls++
			if calls < 3 {
				return errTemporary
			}
			return nil
		}, 3, time.Millisecond)

		require.NoError(t, h(context.Background(), &Message{Key: []byte("o1")}))
		assert.Equal(t, 3, calls)
	})

	t.Run("попытки исчерпаны", func(t *testing.T) {
		calls := 0
		h := WithRetry(func(ctx context.Context, msg *Message) error {
			calls++
			return errTemporary
		}, 2, time.Millisecond)

		err := h(context.Background(), &Message{})
		assert.ErrorIs(t, err, errTemporary)
		assert.Equal(t, 3, calls)
	})

	t.Run("отмена контекста прерывает ожидание", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		h := WithRetry(func(ctx context.Context, msg *Message) error {
			cancel()
			return errTemporary
		}, 5, time.Hour)

		assert.ErrorIs(t, h(ctx, &Message{}), context.Canceled)
	})
}

func TestHeaders(t *testing.T) {
	ctx := logger.NewContextWithIDs(context.Background(), "trace-1", "order-1")

	headers := withContextHeaders(ctx, map[string]string{HeaderTraceID: "explicit"})
	assert.Equal(t, "explicit", headers[HeaderTraceID], "явный trace_id не перезаписывается")
	assert.Equal(t, "order-1", headers[HeaderCorrelationID])
	assert.NotEmpty(t, headers[HeaderTimestamp])

	msg := fromKafkaMessage(kafka.Message{
		Topic: TopicPaymentRecheck,
		Key:   []byte("order-1"),
		Headers: []kafka.Header{
			{Key: HeaderTraceID, Value: []byte("trace-2")},
			{Key: HeaderCorrelationID, Value: []byte("order-2")},
		},
	})
	msgCtx := contextFromMessage(context.Background(), msg)
	assert.Equal(t, "trace-2", logger.TraceIDFromContext(msgCtx))
	assert.Equal(t, "order-2", logger.CorrelationIDFromContext(msgCtx))
}

func TestEnsureTopics_NoBrokers(t *testing.T) {
	err := EnsureTopics(context.Background(), nil, DefaultTopics())
	assert.Error(t, err)
}

func TestDefaultTopics(t *testing.T) {
	names := make([]string, 0, 3)
	for _, spec := range DefaultTopics() {
		names = append(names, spec.Name)
		assert.Positive(t, spec.Partitions)
	}
	assert.ElementsMatch(t, []string{TopicPaymentOutcomes, TopicPaymentRecheck, TopicDLQ}, names)
}
