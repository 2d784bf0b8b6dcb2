// Package circuitbreaker предоставляет Circuit Breaker для защиты от каскадных сбоев.
// Используется HTTP клиентом платёжного процессора для быстрого отказа,
// когда процессор недоступен.
//
// Состояния Circuit Breaker:
//   - Closed: нормальная работа, запросы проходят
//   - Open: процессор недоступен, запросы отклоняются мгновенно (без ожидания timeout)
//   - Half-Open: пробный период, пропускаем MaxRequests запросов для проверки восстановления
//
// Использование:
//
//	cb := circuitbreaker.NewWithSettings("processor", circuitbreaker.Settings{
//	    FailureRatio: 0.5,
//	    MinRequests:  5,
//	    Timeout:      30 * time.Second,
//	    IsFailure:    isTransportFailure,
//	})
//	err := cb.Execute(func() error { return client.Do(req) })
//	if errors.Is(err, circuitbreaker.ErrOpen) {
//	    // отвечаем 503 без обращения к процессору
//	}
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/crypto-checkout/pkg/logger"
)

// ErrOpen возвращается, когда breaker отклоняет вызов без его выполнения:
// состояние Open или исчерпан лимит пробных запросов в Half-Open.
// HTTP слой отвечает на неё 503.
var ErrOpen = errors.New("circuit breaker открыт")

// Settings — настройки Circuit Breaker.
type Settings struct {
	MaxRequests  uint32        // Макс. запросов в Half-Open состоянии (по умолчанию 1)
	Interval     time.Duration // Интервал сброса счётчика в Closed (по умолчанию 60s)
	Timeout      time.Duration // Время в Open до перехода в Half-Open (по умолчанию 30s)
	FailureRatio float64       // Доля ошибок для перехода в Open (по умолчанию 0.5)
	MinRequests  uint32        // Мин. запросов для расчёта ratio (по умолчанию 5)

	// IsFailure решает, учитывать ли ошибку как сбой.
	// nil означает «любая ошибка — сбой». Ошибки валидации и отказы
	// процессора по существу запроса сбоями считать не нужно.
	IsFailure func(err error) bool
}

// DefaultSettings возвращает настройки по умолчанию.
// Открываем при 50% ошибок из минимум 5 запросов, через 30 секунд пробуем
// один запрос в Half-Open.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Breaker — обёртка над gobreaker с логированием смены состояний.
// Безопасен для конкурентного использования.
type Breaker struct {
	cb        *gobreaker.CircuitBreaker[struct{}]
	name      string
	isFailure func(err error) bool
}

// New создаёт Circuit Breaker с настройками по умолчанию.
// name попадает в логи смены состояний (поле breaker).
func New(name string) *Breaker {
	return NewWithSettings(name, DefaultSettings())
}

// NewWithSettings создаёт Circuit Breaker с пользовательскими настройками.
// Нулевые MaxRequests, Interval и Timeout gobreaker заменяет своими
// значениями по умолчанию.
func NewWithSettings(name string, s Settings) *Breaker {
	isFailure := s.IsFailure
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		// ReadyToTrip определяет когда открыть breaker.
		// Открываем если доля ошибок >= FailureRatio и было >= MinRequests запросов.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},

		// OnStateChange логирует смену состояния.
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log := logger.With().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Logger()

			switch to {
			case gobreaker.StateOpen:
				log.Warn().Msg("Circuit Breaker ОТКРЫТ: внешний API недоступен")
			case gobreaker.StateHalfOpen:
				log.Info().Msg("Circuit Breaker ПОЛУОТКРЫТ: пробуем восстановить")
			case gobreaker.StateClosed:
				log.Info().Msg("Circuit Breaker ЗАКРЫТ: внешний API восстановлен")
			}
		},
	})

	return &Breaker{cb: cb, name: name, isFailure: isFailure}
}

// Execute выполняет fn через breaker и возвращает исходную ошибку fn.
// Ошибки, не признанные сбоем, не влияют на состояние breaker.
// Если breaker открыт, fn не вызывается и возвращается ErrOpen.
func (b *Breaker) Execute(fn func() error) error {
	var callErr error

	_, cbErr := b.cb.Execute(func() (struct{}, error) {
		callErr = fn()
		if callErr != nil && b.isFailure(callErr) {
			return struct{}{}, callErr
		}
		return struct{}{}, nil
	})

	if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return callErr
}

// State возвращает текущее состояние breaker.
// Используется в тестах и для диагностики.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name возвращает имя breaker.
func (b *Breaker) Name() string {
	return b.name
}
