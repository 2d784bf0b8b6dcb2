package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/crypto-checkout/pkg/logger"
)

// Consumer читает сообщения топика в составе consumer group.
type Consumer struct {
	reader *kafka.Reader
	dlq    *Producer
	topic  string
}

// NewConsumer создаёт Consumer для topic.
func NewConsumer(cfg Config, topic string) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}
	if topic == "" {
		return nil, fmt.Errorf("не указан топик")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("не указан group ID")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        100 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", topic).
		Str("group_id", cfg.ConsumerGroup).
		Msg("Создан Kafka Consumer")

	return &Consumer{reader: reader, topic: topic}, nil
}

// SetDLQProducer включает пересылку необработанных сообщений в DLQ.
func (c *Consumer) SetDLQProducer(p *Producer) {
	c.dlq = p
}

// Consume читает сообщения до отмены ctx. Offset коммитится после обработки
// независимо от результата: неудачные сообщения к этому моменту уже в DLQ.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	logger.Info().Str("topic", c.topic).Msg("Запуск чтения сообщений из Kafka")

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info().Str("topic", c.topic).Msg("Остановка Consumer")
				return err
			}
			logger.Error().Err(err).Str("topic", c.topic).Msg("Ошибка чтения сообщения из Kafka")
			continue
		}

		msg := fromKafkaMessage(km)
		msgCtx := contextFromMessage(ctx, msg)

		if err := handler(msgCtx, msg); err != nil {
			logger.Ctx(msgCtx).Error().
				Err(err).
				Str("topic", msg.Topic).
				Str("key", string(msg.Key)).
				Int64("offset", msg.Offset).
				Msg("Ошибка обработки сообщения")

			if c.dlq != nil {
				if dlqErr := c.dlq.SendToDLQ(msgCtx, msg, err); dlqErr != nil {
					logger.Error().Err(dlqErr).Msg("Ошибка отправки в DLQ")
				}
			}
		}

		if err := c.reader.CommitMessages(ctx, km); err != nil {
			logger.Error().Err(err).Msg("Ошибка коммита offset")
		}
	}
}

// ConsumeWithRetry как Consume, но каждое сообщение обрабатывается с повторами.
func (c *Consumer) ConsumeWithRetry(ctx context.Context, handler MessageHandler, maxRetries int) error {
	return c.Consume(ctx, WithRetry(handler, maxRetries, 100*time.Millisecond))
}

// Close закрывает reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		logger.Error().Err(err).Str("topic", c.topic).Msg("Ошибка при закрытии Kafka Consumer")
		return fmt.Errorf("ошибка закрытия consumer: %w", err)
	}
	logger.Info().Str("topic", c.topic).Msg("Kafka Consumer закрыт")
	return nil
}

// Lag возвращает отставание Consumer от конца топика.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}
