// Package metrics предоставляет Prometheus метрики платёжного сервиса
// и HTTP сервер для /metrics, /healthz и /readyz.
//
//	srv := metrics.NewServer(":9090", "payment-service", metrics.WithReadinessCheck(check))
//	go srv.Start()
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/crypto-checkout/pkg/logger"
)

// =============================================================================
// HTTP метрики
// =============================================================================

var (
	// RequestsTotal — входящие HTTP запросы по маршруту и результату.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Общее количество запросов по сервису, методу и статусу",
		},
		[]string{"service", "method", "status"},
	)

	// RequestDuration — latency входящих запросов.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Время выполнения запроса в секундах",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method"},
	)
)

// =============================================================================
// Доменные метрики
// =============================================================================

var (
	// ProcessorCalls — вызовы API процессора: endpoint=create_invoice|get_invoices,
	// result=ok|transport_error|bad_shape|circuit_open.
	ProcessorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_calls_total",
			Help: "Вызовы API платёжного процессора по endpoint и результату",
		},
		[]string{"endpoint", "result"},
	)

	// ProcessorLatency — длительность вызовов процессора.
	ProcessorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processor_call_duration_seconds",
			Help:    "Длительность вызова API процессора в секундах",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"endpoint"},
	)

	// ReconcileOutcomes — итоги сверки статуса по исходу и уверенности.
	ReconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_outcomes_total",
			Help: "Результаты сверки статуса платежа",
		},
		[]string{"outcome", "confidence"},
	)

	// ProbeDisagreements — расхождения между probe=1 и probe=0.
	ProbeDisagreements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_probe_disagreements_total",
			Help: "Количество расхождений между пробами статуса",
		},
	)

	// WebhookNotifications — входящие уведомления по исходу и результату обработки.
	WebhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Обработанные webhook уведомления процессора",
		},
		[]string{"outcome", "result"},
	)
)

// RecordProcessorCall фиксирует вызов процессора.
func RecordProcessorCall(endpoint, result string, duration time.Duration) {
	ProcessorCalls.WithLabelValues(endpoint, result).Inc()
	ProcessorLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// =============================================================================
// HTTP Server для /metrics endpoint
// =============================================================================

// ReadinessChecker возвращает nil, если сервис готов принимать трафик.
type ReadinessChecker func(ctx context.Context) error

// Server — HTTP сервер для экспорта метрик Prometheus.
type Server struct {
	httpServer     *http.Server
	service        string
	readinessCheck ReadinessChecker
}

// Option — функциональная опция для настройки Server.
type Option func(*Server)

// WithReadinessCheck добавляет проверку готовности для /readyz.
func WithReadinessCheck(checker ReadinessChecker) Option {
	return func(s *Server) {
		s.readinessCheck = checker
	}
}

// NewServer создаёт metrics server.
func NewServer(addr, service string, opts ...Option) *Server {
	s := &Server{service: service}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})
	mux.HandleFunc("/readyz", s.handleReady)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler возвращает http.Handler сервера (для тестов).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.readinessCheck == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.readinessCheck(ctx); err != nil {
		// Детали ошибки наружу не отдаём
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
		logger.Warn().Err(err).Str("service", s.service).Msg("Readiness check не пройден")
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// Start запускает HTTP сервер. Блокирующий вызов.
func (s *Server) Start() error {
	logger.Info().Str("service", s.service).Str("addr", s.httpServer.Addr).Msg("Запуск Metrics Server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// =============================================================================
// Gin Middleware
// =============================================================================

// RecordRequest записывает метрики входящего запроса.
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// GinMetricsMiddleware собирает requests_total и request_duration_seconds.
func GinMetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := "success"
		if c.Writer.Status() >= 400 {
			status = "error"
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordRequest(service, route, status, time.Since(start))
	}
}
