// Package outbox хранит исходящие события в MySQL до их публикации в Kafka.
// Запись создаётся синхронно в обработчике (webhook, сверка), Worker
// асинхронно публикует её и помечает обработанной. Доставка at-least-once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/crypto-checkout/pkg/logger"
)

// Record — событие, ожидающее публикации.
type Record struct {
	ID          string
	AggregateID string // order_id
	EventType   string // например payment.finished
	Topic       string
	MessageKey  string
	Payload     []byte
	Headers     map[string]string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	RetryCount  int
	LastError   *string
}

// NewRecord сериализует payload и собирает запись с ключом сообщения aggregateID.
// trace_id и correlation_id из ctx переносятся в headers.
func NewRecord(ctx context.Context, topic, eventType, aggregateID string, payload any) (*Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации payload outbox: %w", err)
	}

	headers := map[string]string{"event_type": eventType}
	if v := logger.TraceIDFromContext(ctx); v != "" {
		headers["trace_id"] = v
	}
	if v := logger.CorrelationIDFromContext(ctx); v != "" {
		headers["correlation_id"] = v
	}

	return &Record{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Topic:       topic,
		MessageKey:  aggregateID,
		Payload:     data,
		Headers:     headers,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (r *Record) headersJSON() ([]byte, error) {
	if r.Headers == nil {
		return nil, nil
	}
	return json.Marshal(r.Headers)
}

func (r *Record) setHeadersJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &r.Headers)
}
