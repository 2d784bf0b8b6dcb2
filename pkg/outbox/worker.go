package outbox

import (
	"context"
	"time"

	"example.com/crypto-checkout/pkg/kafka"
	"example.com/crypto-checkout/pkg/logger"
)

// Publisher публикует сообщение в брокер. Реализуется kafka.Producer.
type Publisher interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// WorkerConfig — настройки Worker.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries: после стольких неудач запись снимается с очереди (dead letter).
	MaxRetries int

	CleanupInterval  time.Duration
	CleanupRetention time.Duration
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:     time.Second,
		BatchSize:        100,
		MaxRetries:       5,
		CleanupInterval:  time.Hour,
		CleanupRetention: 7 * 24 * time.Hour,
	}
}

// Worker публикует записи outbox в Kafka.
type Worker struct {
	repo      Repository
	publisher Publisher
	cfg       WorkerConfig
}

// NewWorker создаёт Worker.
func NewWorker(repo Repository, publisher Publisher, cfg WorkerConfig) *Worker {
	return &Worker{repo: repo, publisher: publisher, cfg: cfg}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Outbox Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupEvery := w.cfg.CleanupInterval
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	cleanup := time.NewTicker(cleanupEvery)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Worker")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	deleted, err := w.repo.DeleteProcessedBefore(ctx, time.Now().Add(-w.cfg.CleanupRetention))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Ошибка очистки outbox")
		return
	}
	if deleted > 0 {
		logger.Ctx(ctx).Info().Int64("deleted", deleted).Msg("Очищены обработанные записи outbox")
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	log := logger.FromContext(ctx)

	records, err := w.repo.GetUnprocessed(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка чтения outbox")
		return
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return
		}

		if record.RetryCount >= w.cfg.MaxRetries {
			log.Warn().
				Str("outbox_id", record.ID).
				Str("event_type", record.EventType).
				Str("order_id", record.AggregateID).
				Int("retry_count", record.RetryCount).
				Msg("Dead letter: превышен лимит попыток, запись выведена из очереди")

			if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
				log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки dead letter")
			}
			continue
		}

		if err := w.Publish(ctx, record); err != nil {
			log.Error().
				Err(err).
				Str("outbox_id", record.ID).
				Str("topic", record.Topic).
				Msg("Ошибка публикации записи outbox")
		}
	}
}

// Publish отправляет одну запись и фиксирует результат в репозитории.
func (w *Worker) Publish(ctx context.Context, record *Record) error {
	msg := &kafka.Message{
		Topic:   record.Topic,
		Key:     []byte(record.MessageKey),
		Value:   record.Payload,
		Headers: record.Headers,
	}

	if err := w.publisher.SendMessage(ctx, msg); err != nil {
		if markErr := w.repo.MarkFailed(ctx, record.ID, err); markErr != nil {
			logger.Ctx(ctx).Error().Err(markErr).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как failed")
		}
		return err
	}

	if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
		return err
	}

	logger.Ctx(ctx).Debug().
		Str("outbox_id", record.ID).
		Str("event_type", record.EventType).
		Msg("Событие outbox опубликовано")
	return nil
}
