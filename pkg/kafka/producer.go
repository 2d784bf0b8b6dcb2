package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/crypto-checkout/pkg/logger"
)

// Producer публикует сообщения в Kafka синхронно.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer создаёт Producer.
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{}, // события одного заказа попадают в одну партицию
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info().Strs("brokers", cfg.Brokers).Msg("Создан Kafka Producer")

	return &Producer{writer: writer}, nil
}

// SendMessage публикует подготовленное сообщение, дополняя стандартные headers.
func (p *Producer) SendMessage(ctx context.Context, msg *Message) error {
	msg.Headers = withContextHeaders(ctx, msg.Headers)
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	if err := p.writer.WriteMessages(ctx, msg.toKafkaMessage()); err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("topic", msg.Topic).
			Str("key", string(msg.Key)).
			Msg("Ошибка отправки сообщения в Kafka")
		return fmt.Errorf("ошибка отправки в Kafka: %w", err)
	}

	logger.Ctx(ctx).Debug().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Msg("Сообщение отправлено в Kafka")
	return nil
}

// Send публикует key/value в топик.
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte) error {
	return p.SendMessage(ctx, &Message{Topic: topic, Key: key, Value: value})
}

// SendToDLQ пересылает сообщение в DLQ с описанием ошибки в headers.
func (p *Producer) SendToDLQ(ctx context.Context, original *Message, processingErr error) error {
	headers := make(map[string]string, len(original.Headers)+3)
	for k, v := range original.Headers {
		headers[k] = v
	}
	headers["dlq_error"] = processingErr.Error()
	headers["dlq_original_topic"] = original.Topic
	headers["dlq_timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	return p.SendMessage(ctx, &Message{
		Topic:   TopicDLQ,
		Key:     original.Key,
		Value:   original.Value,
		Headers: headers,
	})
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		logger.Error().Err(err).Msg("Ошибка при закрытии Kafka Producer")
		return fmt.Errorf("ошибка закрытия producer: %w", err)
	}
	logger.Info().Msg("Kafka Producer закрыт")
	return nil
}
