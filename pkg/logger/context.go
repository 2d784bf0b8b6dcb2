package logger

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	traceIDKey       ctxKey = "trace_id"
	correlationIDKey ctxKey = "correlation_id"
	orderIDKey       ctxKey = "order_id"
	invoiceIDKey     ctxKey = "invoice_id"
	loggerKey        ctxKey = "logger"
)

// WithTraceID добавляет trace_id в контекст.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext возвращает trace_id или пустую строку.
func TraceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// WithCorrelationID добавляет correlation_id в контекст.
// Для платёжных сценариев correlation_id обычно равен order_id.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext возвращает correlation_id или пустую строку.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithOrder добавляет идентификаторы заказа и счёта в контекст.
// Пустые значения пропускаются.
//
//	ctx = logger.WithOrder(ctx, orderID, invoiceID)
//	logger.Ctx(ctx).Info().Msg("Сверка статуса")
func WithOrder(ctx context.Context, orderID, invoiceID string) context.Context {
	if orderID != "" {
		ctx = context.WithValue(ctx, orderIDKey, orderID)
	}
	if invoiceID != "" {
		ctx = context.WithValue(ctx, invoiceIDKey, invoiceID)
	}
	return ctx
}

// WithLogger кладёт настроенный логгер в контекст.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext возвращает логгер из контекста (или глобальный) и добавляет
// trace_id, correlation_id, order_id и invoice_id, если они есть.
func FromContext(ctx context.Context) zerolog.Logger {
	l := log
	if ctxLogger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		l = ctxLogger
	}

	fields := []struct {
		key  ctxKey
		name string
	}{
		{traceIDKey, "trace_id"},
		{correlationIDKey, "correlation_id"},
		{orderIDKey, "order_id"},
		{invoiceIDKey, "invoice_id"},
	}

	lc := l.With()
	for _, f := range fields {
		if v := stringValue(ctx, f.key); v != "" {
			lc = lc.Str(f.name, v)
		}
	}
	return lc.Logger()
}

// Ctx возвращает указатель на логгер из контекста.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}

// NewContextWithIDs добавляет непустые trace_id и correlation_id.
func NewContextWithIDs(ctx context.Context, traceID, correlationID string) context.Context {
	if traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	if correlationID != "" {
		ctx = WithCorrelationID(ctx, correlationID)
	}
	return ctx
}

func stringValue(ctx context.Context, key ctxKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
