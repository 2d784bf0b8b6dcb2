// Package logger предоставляет структурированное логирование на базе zerolog.
// Поддерживает JSON формат для production и pretty-print для development.
// Логгер запроса передаётся через context.Context (см. context.go) и
// дополняется trace_id, correlation_id, order_id и invoice_id.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log - глобальный экземпляр логгера.
// Инициализируется в init() из LOG_LEVEL/LOG_PRETTY и перенастраивается Init().
var log zerolog.Logger

// Config содержит настройки для инициализации логгера.
type Config struct {
	// Level определяет минимальный уровень логирования.
	// Возможные значения: "trace", "debug", "info", "warn", "error", "fatal".
	// По умолчанию: "info". Неизвестное значение тоже даёт "info".
	Level string

	// Pretty включает читаемый цветной вывод вместо JSON.
	// Рекомендуется true для development, false для production.
	Pretty bool

	// Output определяет куда писать логи.
	// По умолчанию: os.Stdout. В тестах удобно передавать bytes.Buffer.
	Output io.Writer

	// Service добавляется полем "service" в каждую запись, если задан.
	// Позволяет отличать записи payment-service и paymentctl в общем хранилище.
	Service string
}

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	Init(Config{
		Level:  level,
		Pretty: strings.EqualFold(os.Getenv("LOG_PRETTY"), "true"),
	})
}

// Init (пере)инициализирует глобальный логгер с заданной конфигурацией.
// Вызывается в начале main после загрузки конфигурации:
//
//	logger.Init(logger.Config{Level: cfg.App.LogLevel, Pretty: cfg.App.LogPretty, Service: "payment-service"})
func Init(cfg Config) {
	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	level := ParseLevel(cfg.Level)

	lc := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller()
	if cfg.Service != "" {
		lc = lc.Str("service", cfg.Service)
	}
	log = lc.Logger()

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
}

// ParseLevel преобразует строку в zerolog.Level.
// Регистр и пробелы не важны, "warning" равнозначен "warn".
// Неизвестный или пустой уровень даёт InfoLevel.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug создает событие лога уровня debug.
// Используется для детальной отладочной информации.
// Пример: logger.Debug().Str("invoice_id", "inv-1").Msg("Ответ процессора разобран")
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info создает событие лога уровня info.
// Используется для информационных сообщений о нормальной работе.
// Пример: logger.Info().Str("order_id", "o1").Msg("Счёт выставлен")
func Info() *zerolog.Event {
	return log.Info()
}

// Warn создает событие лога уровня warn.
// Используется для предупреждений о потенциальных проблемах.
// Пример: logger.Warn().Str("reason", "...").Msg("Расхождение проб статуса")
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error создает событие лога уровня error.
// Используется для ошибок, не приводящих к остановке приложения.
// Пример: logger.Error().Err(err).Msg("Ошибка публикации записи outbox")
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal создает событие лога уровня fatal и завершает приложение.
// Используется для критических ошибок при старте (нет БД, неверная конфигурация).
// ВНИМАНИЕ: после вызова Msg() приложение завершится с кодом 1.
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// With создает новый логгер с дополнительными полями.
// Возвращает zerolog.Context для добавления полей.
// Пример:
//
//	log := logger.With().Str("component", "reconcile").Logger()
//	log.Info().Msg("Компонент запущен")
func With() zerolog.Context {
	return log.With()
}

// Logger возвращает глобальный экземпляр zerolog.Logger.
// Используется в main, где нужен логгер-значение для замыканий.
func Logger() zerolog.Logger {
	return log
}

// SetGlobalLogger устанавливает глобальный логгер.
// Полезно в тестах, когда нужно перехватить вывод в буфер.
func SetGlobalLogger(l zerolog.Logger) {
	log = l
}
