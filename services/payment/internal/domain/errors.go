// Package domain содержит сущности и чистые правила сверки платежей:
// исходы, счета, допуск по сумме, классификатор статусов и типизированные ошибки.
package domain

import (
	"errors"
	"fmt"
)

// Доменные ошибки.
var (
	// ErrMissingIdentifier — не указан ни order_id, ни invoice_id.
	ErrMissingIdentifier = errors.New("не указан ни order_id, ни invoice_id")

	// ErrInvalidAmount — сумма не положительна или не конечна.
	ErrInvalidAmount = errors.New("сумма должна быть положительным конечным числом")

	// ErrMissingCurrency — не указана валюта цены.
	ErrMissingCurrency = errors.New("не указана валюта")

	// ErrInvalidRedirectURL — адрес переадресации не абсолютный URL.
	ErrInvalidRedirectURL = errors.New("адрес переадресации должен быть абсолютным http(s) URL")

	// ErrConflictingRedirects — заданы разные failure_url и cancel_url, а процессор
	// принимает только один адрес возврата при отмене.
	ErrConflictingRedirects = errors.New("failure_url и cancel_url заданы с разными значениями")

	// ErrUnparsableAmount — значение суммы есть, но не разбирается как число.
	ErrUnparsableAmount = errors.New("сумма не распознана как число")

	// ErrMalformedPayload — тело уведомления не является JSON объектом.
	ErrMalformedPayload = errors.New("тело уведомления не является JSON объектом")

	// ErrSignatureMismatch — подпись или секрет уведомления не совпали.
	ErrSignatureMismatch = errors.New("подпись уведомления не совпадает")

	// ErrSignatureRequired — уведомление без подписи при обязательной проверке.
	ErrSignatureRequired = errors.New("уведомление не содержит подписи")
)

// ValidationError — некорректный вход, отклонённый до любого сетевого вызова.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError создаёт ValidationError для поля field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("невалидный запрос: %v", e.Err)
	}
	return fmt.Sprintf("невалидный запрос: поле %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError — сетевая ошибка, таймаут или не-2xx ответ процессора.
type TransportError struct {
	Op         string // create_invoice | get_invoices
	StatusCode int    // 0, если ответа не было
	Body       string // начало тела ответа для диагностики
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("процессор %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("процессор %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnrecognizedShapeError — процессор вернул ответ вне известных форм.
// Raw содержит исходное тело ответа.
type UnrecognizedShapeError struct {
	Op     string
	Reason string
	Raw    []byte
}

func (e *UnrecognizedShapeError) Error() string {
	return fmt.Sprintf("процессор %s: неизвестная форма ответа (%s): %s", e.Op, e.Reason, truncate(e.Raw, 256))
}

// AuthenticityError — подпись или секрет входящего уведомления не прошли проверку.
type AuthenticityError struct {
	Scheme string // hmac-sha512 | shared-secret
	Err    error
}

func (e *AuthenticityError) Error() string {
	return fmt.Sprintf("проверка подлинности (%s) не пройдена: %v", e.Scheme, e.Err)
}

func (e *AuthenticityError) Unwrap() error { return e.Err }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
