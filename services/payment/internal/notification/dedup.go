package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

const prefixWebhook = "payment:webhook:" // payment:webhook:{invoice_id}:{outcome}

// Deduplicator подавляет повторную обработку одного и того же перехода.
type Deduplicator interface {
	// Claim возвращает true, если переход обрабатывается впервые.
	Claim(ctx context.Context, invoiceID string, outcome domain.PaymentOutcome) (bool, error)
	// Release снимает отметку, чтобы повторная доставка была обработана.
	Release(ctx context.Context, invoiceID string, outcome domain.PaymentOutcome) error
}

// RedisDeduplicator хранит отметки обработанных переходов в Redis с TTL.
type RedisDeduplicator struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisDeduplicator создаёт RedisDeduplicator.
func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDeduplicator{redis: client, ttl: ttl}
}

func dedupKey(invoiceID string, outcome domain.PaymentOutcome) string {
	return prefixWebhook + invoiceID + ":" + string(outcome)
}

// Claim ставит ключ через SETNX.
func (d *RedisDeduplicator) Claim(ctx context.Context, invoiceID string, outcome domain.PaymentOutcome) (bool, error) {
	ok, err := d.redis.SetNX(ctx, dedupKey(invoiceID, outcome), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка записи ключа дедупликации: %w", err)
	}
	return ok, nil
}

// Release удаляет ключ.
func (d *RedisDeduplicator) Release(ctx context.Context, invoiceID string, outcome domain.PaymentOutcome) error {
	if err := d.redis.Del(ctx, dedupKey(invoiceID, outcome)).Err(); err != nil {
		return fmt.Errorf("ошибка удаления ключа дедупликации: %w", err)
	}
	return nil
}

// claim обращается к дедупликатору и при его недоступности пропускает уведомление дальше.
func claim(ctx context.Context, d Deduplicator, invoiceID string, outcome domain.PaymentOutcome) bool {
	if d == nil {
		return true
	}
	first, err := d.Claim(ctx, invoiceID, outcome)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Дедупликация недоступна, уведомление обрабатывается")
		return true
	}
	return first
}
