// Package kafka содержит обёртки над kafka-go: Producer для публикации событий
// об исходах платежей и Consumer для команд повторной сверки с DLQ.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/crypto-checkout/pkg/logger"
)

// Топики платёжного сервиса.
const (
	// TopicPaymentOutcomes — события об изменении исхода платежа (публикует outbox worker).
	TopicPaymentOutcomes = "payment.outcomes"

	// TopicPaymentRecheck — команды на повторную сверку статуса заказа.
	TopicPaymentRecheck = "payment.recheck"

	// TopicDLQ — сообщения, обработка которых не удалась после всех попыток.
	TopicDLQ = "dlq.payment"
)

// Ключи headers.
const (
	HeaderTraceID       = "trace_id"
	HeaderCorrelationID = "correlation_id"
	HeaderTimestamp     = "timestamp"
	HeaderEventType     = "event_type"
)

// Config содержит настройки подключения к Kafka.
type Config struct {
	Brokers       []string
	ConsumerGroup string
}

// Message — сообщение Kafka с метаданными.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Headers   map[string]string
	Time      time.Time
}

func fromKafkaMessage(m kafka.Message) *Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Headers:   headers,
		Time:      m.Time,
	}
}

func (m *Message) toKafkaMessage() kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Topic:   m.Topic,
		Headers: headers,
		Time:    m.Time,
	}
}

// withContextHeaders дополняет headers значениями trace_id / correlation_id из ctx
// и отметкой времени. Уже заданные значения не перезаписываются.
func withContextHeaders(ctx context.Context, headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string, 3)
	}
	if _, ok := headers[HeaderTraceID]; !ok {
		if v := logger.TraceIDFromContext(ctx); v != "" {
			headers[HeaderTraceID] = v
		}
	}
	if _, ok := headers[HeaderCorrelationID]; !ok {
		if v := logger.CorrelationIDFromContext(ctx); v != "" {
			headers[HeaderCorrelationID] = v
		}
	}
	if _, ok := headers[HeaderTimestamp]; !ok {
		headers[HeaderTimestamp] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return headers
}

// contextFromMessage переносит trace_id и correlation_id из headers в context.
func contextFromMessage(ctx context.Context, msg *Message) context.Context {
	return logger.NewContextWithIDs(ctx, msg.Headers[HeaderTraceID], msg.Headers[HeaderCorrelationID])
}

// MessageHandler обрабатывает одно сообщение. nil означает успех.
type MessageHandler func(ctx context.Context, msg *Message) error

// WithRetry оборачивает handler повторами с экспоненциальной задержкой
// base, 2*base, 4*base... Возвращает последнюю ошибку после maxRetries повторов.
func WithRetry(handler MessageHandler, maxRetries int, base time.Duration) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				delay := base * time.Duration(1<<(attempt-1))
				logger.Ctx(ctx).Warn().
					Int("attempt", attempt).
					Str("key", string(msg.Key)).
					Dur("delay", delay).
					Msg("Повторная попытка обработки сообщения")

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if lastErr = handler(ctx, msg); lastErr == nil {
				return nil
			}
		}
		return fmt.Errorf("исчерпаны попытки обработки: %w", lastErr)
	}
}
