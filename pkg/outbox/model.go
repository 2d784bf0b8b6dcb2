package outbox

import (
	"time"

	"gorm.io/gorm"
)

// recordModel — GORM модель таблицы payment_outbox.
type recordModel struct {
	ID          string     `gorm:"column:id;type:varchar(36);primaryKey"`
	AggregateID string     `gorm:"column:aggregate_id;type:varchar(64);not null;index:idx_outbox_aggregate"`
	EventType   string     `gorm:"column:event_type;type:varchar(100);not null"`
	Topic       string     `gorm:"column:topic;type:varchar(100);not null"`
	MessageKey  string     `gorm:"column:message_key;type:varchar(100);not null"`
	Payload     []byte     `gorm:"column:payload;type:json;not null"`
	Headers     []byte     `gorm:"column:headers;type:json"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at;index:idx_outbox_unprocessed"`
	RetryCount  int        `gorm:"column:retry_count;not null;default:0"`
	LastError   *string    `gorm:"column:last_error;type:text"`
}

func (recordModel) TableName() string {
	return "payment_outbox"
}

// Migrate создаёт или обновляет таблицу outbox.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&recordModel{})
}

func (m *recordModel) toRecord() *Record {
	r := &Record{
		ID:          m.ID,
		AggregateID: m.AggregateID,
		EventType:   m.EventType,
		Topic:       m.Topic,
		MessageKey:  m.MessageKey,
		Payload:     m.Payload,
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
		RetryCount:  m.RetryCount,
		LastError:   m.LastError,
	}
	// Битые headers не мешают доставке payload
	_ = r.setHeadersJSON(m.Headers)
	return r
}

func modelFromRecord(r *Record) *recordModel {
	m := &recordModel{
		ID:          r.ID,
		AggregateID: r.AggregateID,
		EventType:   r.EventType,
		Topic:       r.Topic,
		MessageKey:  r.MessageKey,
		Payload:     r.Payload,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
		RetryCount:  r.RetryCount,
		LastError:   r.LastError,
	}
	if data, err := r.headersJSON(); err == nil {
		m.Headers = data
	}
	return m
}
