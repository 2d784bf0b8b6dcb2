package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound — запись outbox не найдена.
var ErrNotFound = errors.New("запись outbox не найдена")

// Repository — хранилище записей outbox.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	// GetUnprocessed возвращает неотправленные записи: сначала с меньшим retry_count.
	GetUnprocessed(ctx context.Context, limit int) ([]*Record, error)
	MarkProcessed(ctx context.Context, id string) error
	// MarkFailed увеличивает retry_count и сохраняет текст ошибки.
	MarkFailed(ctx context.Context, id string, err error) error
	// DeleteProcessedBefore удаляет до 1000 обработанных записей старше before.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository создаёт GORM реализацию Repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, record *Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(modelFromRecord(record)).Error
}

func (r *gormRepository) GetUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	var models []recordModel

	if err := r.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("retry_count ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]*Record, len(models))
	for i := range models {
		records[i] = models[i].toRecord()
	}
	return records, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&recordModel{}).
		Where("id = ?", id).
		Update("processed_at", time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) MarkFailed(ctx context.Context, id string, err error) error {
	result := r.db.WithContext(ctx).Model(&recordModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  err.Error(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", before).
		Limit(1000).
		Delete(&recordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
