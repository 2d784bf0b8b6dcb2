package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"example.com/crypto-checkout/pkg/logger"
)

// TopicSpec — параметры создаваемого топика.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// DefaultTopics возвращает топики платёжного сервиса.
func DefaultTopics() []TopicSpec {
	return []TopicSpec{
		{Name: TopicPaymentOutcomes, Partitions: 3, ReplicationFactor: 1},
		{Name: TopicPaymentRecheck, Partitions: 3, ReplicationFactor: 1},
		{Name: TopicDLQ, Partitions: 1, ReplicationFactor: 1},
	}
}

// EnsureTopics создаёт отсутствующие топики через controller кластера.
// Уже существующие топики не считаются ошибкой.
func EnsureTopics(ctx context.Context, brokers []string, topics []TopicSpec) error {
	if len(brokers) == 0 {
		return fmt.Errorf("не указаны брокеры Kafka")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("ошибка подключения к Kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("ошибка получения controller: %w", err)
	}

	ctrlConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("ошибка подключения к controller: %w", err)
	}
	defer ctrlConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
		})
	}

	if err := ctrlConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("ошибка создания топиков: %w", err)
	}

	logger.Info().Int("count", len(configs)).Msg("Топики Kafka проверены")
	return nil
}
