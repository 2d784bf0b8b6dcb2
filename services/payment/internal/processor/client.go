// Package processor — граница с REST API платёжного процессора: HTTP транспорт,
// разбор нестабильных форм ответов и запросы create_invoice / get_invoices.
// Наружу выходят только канонические domain.Invoice и типизированные ошибки.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"example.com/crypto-checkout/pkg/circuitbreaker"
	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/metrics"
	"example.com/crypto-checkout/pkg/tracing"
	"example.com/crypto-checkout/services/payment/internal/config"
	"example.com/crypto-checkout/services/payment/internal/domain"
)

// Имена операций процессора.
const (
	OpCreateInvoice = "create_invoice"
	OpGetInvoices   = "get_invoices"
)

// maxResponseBytes ограничивает чтение тела ответа процессора.
const maxResponseBytes = 4 << 20

// Client выполняет POST запросы к процессору с учётными данными мерчанта.
// Повторов нет: create_invoice не идемпотентен на стороне процессора.
type Client struct {
	http    *http.Client
	cfg     config.ProcessorConfig
	breaker *circuitbreaker.Breaker
}

// NewClient создаёт клиент. httpClient может быть nil, тогда создаётся
// клиент с таймаутом из cfg.
func NewClient(cfg config.ProcessorConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	settings := circuitbreaker.DefaultSettings()
	if cfg.BreakerFailureRatio > 0 {
		settings.FailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerMinRequests > 0 {
		settings.MinRequests = cfg.BreakerMinRequests
	}
	if cfg.BreakerOpenTimeout > 0 {
		settings.Timeout = cfg.BreakerOpenTimeout
	}
	// 4xx — ошибка запроса, а не недоступность процессора
	settings.IsFailure = func(err error) bool {
		var te *domain.TransportError
		if errors.As(err, &te) {
			return te.StatusCode == 0 || te.StatusCode >= 500
		}
		return false
	}

	return &Client{
		http:    httpClient,
		cfg:     cfg,
		breaker: circuitbreaker.NewWithSettings("processor", settings),
	}
}

// post отправляет JSON тело на path и возвращает тело 2xx ответа.
// Любая сетевая ошибка, не-2xx и открытый breaker возвращаются как *domain.TransportError.
func (c *Client) post(ctx context.Context, op, path string, body map[string]any) ([]byte, error) {
	ctx, span := tracing.Tracer("processor").Start(ctx, "processor."+op)
	defer span.End()

	start := time.Now()

	payload := make(map[string]any, len(body)+2)
	for k, v := range body {
		payload[k] = v
	}
	payload["merchant_id"] = c.cfg.MerchantID
	payload["api_key"] = c.cfg.APIKey

	var respBody []byte
	err := c.breaker.Execute(func() error {
		var callErr error
		respBody, callErr = c.do(ctx, op, path, payload)
		return callErr
	})

	result := "ok"
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		result = "circuit_open"
		err = &domain.TransportError{Op: op, Err: err}
	case err != nil:
		result = "transport_error"
	}
	metrics.RecordProcessorCall(op, result, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		logger.Ctx(ctx).Warn().Err(err).Str("op", op).Msg("Ошибка вызова процессора")
		return nil, err
	}

	span.SetAttributes(attribute.Int("processor.response_bytes", len(respBody)))
	logger.Ctx(ctx).Debug().
		Str("op", op).
		Dur("duration", time.Since(start)).
		Msg("Ответ процессора получен")
	return respBody, nil
}

func (c *Client) do(ctx context.Context, op, path string, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: fmt.Errorf("сериализация запроса: %w", err)}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("чтение ответа: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       snippet(body),
			Err:        fmt.Errorf("неуспешный ответ процессора"),
		}
	}
	return body, nil
}

func snippet(b []byte) string {
	const n = 512
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
