// Payment Service — выставление счетов в криптовалюте, приём уведомлений
// процессора и сверка статуса оплаты заказов.
// События об исходах пишутся в outbox и публикуются в Kafka (payment.outcomes),
// команды повторной сверки читаются из payment.recheck.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	dbpkg "example.com/crypto-checkout/pkg/db"
	"example.com/crypto-checkout/pkg/healthcheck"
	"example.com/crypto-checkout/pkg/kafka"
	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/pkg/metrics"
	"example.com/crypto-checkout/pkg/outbox"
	"example.com/crypto-checkout/pkg/tracing"
	"example.com/crypto-checkout/services/payment/internal/app"
	"example.com/crypto-checkout/services/payment/internal/config"
	"example.com/crypto-checkout/services/payment/internal/events"
	"example.com/crypto-checkout/services/payment/internal/handler"
	"example.com/crypto-checkout/services/payment/internal/middleware"
	"example.com/crypto-checkout/services/payment/internal/notification"
	"example.com/crypto-checkout/services/payment/internal/recheck"
)

const serviceName = "payment-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:   cfg.App.LogLevel,
		Pretty:  cfg.App.LogPretty,
		Service: serviceName,
	})
	log := logger.Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("addr", cfg.HTTP.Addr()).
		Bool("dual_probe", cfg.Reconcile.DualProbe).
		Msg("Запуск Payment Service")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:  serviceName,
		Environment:  cfg.App.Env,
		OTLPEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:      cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()

	db, err := dbpkg.ConnectMySQL(startCtx, cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	if err := outbox.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Ошибка миграции таблицы outbox")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	// Redis нужен для дедупликации и rate limit, обе функции работают в режиме fail-open
	rdb, err := dbpkg.ConnectRedis(startCtx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis недоступен, дедупликация и rate limit работают в режиме fail-open")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()

	checks := []healthcheck.Check{healthcheck.MySQL(db), healthcheck.Redis(rdb)}
	if cfg.Kafka.Enabled {
		checks = append(checks, healthcheck.Kafka(cfg.Kafka.Brokers))
	}
	readinessCheck := healthcheck.Composite(checks...)

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), serviceName,
			metrics.WithReadinessCheck(metrics.ReadinessChecker(readinessCheck)))
		metricsWg.Add(1)
		go func() {
			defer metricsWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Ядро сверки ===

	core, err := app.NewCore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации ядра")
	}

	outboxRepo := outbox.NewRepository(db)
	eventWriter := events.NewWriter(outboxRepo)

	var auths []notification.Authenticator
	if cfg.Webhook.HMACSecret != "" {
		auths = append(auths, notification.NewHMACAuthenticator(cfg.Webhook.HMACSecret))
	}
	if cfg.Webhook.SharedSecret != "" {
		auths = append(auths, notification.NewSharedSecretAuthenticator(cfg.Webhook.SharedSecret))
	}
	if len(auths) == 0 {
		log.Warn().Msg("Секреты уведомлений не заданы, подлинность webhook не проверяется")
	}

	notifications := notification.NewHandler(core.Classifier, events.NewOutboxHooks(eventWriter), notification.Options{
		Authenticators:   auths,
		RequireSignature: cfg.Webhook.RequireSignature,
		Lookup:           core.Gateway,
		Dedup:            notification.NewRedisDeduplicator(rdb, cfg.Webhook.DedupTTL),
	})

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			Redis:  rdb,
			Limit:  cfg.RateLimit.RequestsLimit,
			Window: cfg.RateLimit.Window,
		})
	}

	router := handler.NewRouter(handler.RouterConfig{
		Issuer:        core.Issuer,
		Reconciler:    core.Engine,
		Notifications: notifications,
		Forward:       core.Forward,
		RateLimiter:   rateLimiter,
		Paths: handler.Paths{
			Callback: cfg.Site.CallbackPath,
			Success:  cfg.Site.SuccessPath,
			Cancel:   cfg.Site.CancelPath,
		},
		SignatureHeader: cfg.Webhook.SignatureHeader,
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		ReadinessCheck:  handler.ReadinessChecker(readinessCheck),
		Debug:           cfg.IsDevelopment(),
	})

	// === Фоновые воркеры: outbox и команды сверки ===

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workersWg sync.WaitGroup
	var kafkaProducer *kafka.Producer
	var recheckConsumer *kafka.Consumer

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Инициализация Kafka")

		if err := kafka.EnsureTopics(startCtx, cfg.Kafka.Brokers, kafka.DefaultTopics()); err != nil {
			log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
		}

		kafkaCfg := kafka.Config{Brokers: cfg.Kafka.Brokers, ConsumerGroup: cfg.Kafka.ConsumerGroup}

		kafkaProducer, err = kafka.NewProducer(kafkaCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
		}

		recheckConsumer, err = kafka.NewConsumer(kafkaCfg, kafka.TopicPaymentRecheck)
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Consumer")
		}
		recheckConsumer.SetDLQProducer(kafkaProducer)

		recheckHandler := recheck.NewHandler(core.Engine, eventWriter)
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Паника в обработчике команд сверки")
				}
			}()
			if err := recheck.Run(ctx, recheckConsumer, recheckHandler, cfg.Reconcile.RecheckRetries); err != nil {
				log.Error().Err(err).Msg("Ошибка обработчика команд сверки")
			}
		}()

		outboxWorker := outbox.NewWorker(outboxRepo, kafkaProducer, outbox.DefaultWorkerConfig())
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Паника в Outbox Worker")
				}
			}()
			outboxWorker.Run(ctx)
		}()
	} else {
		log.Warn().Msg("Kafka отключена: события копятся в outbox, команды сверки не читаются")
	}

	// === HTTP сервер ===

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// сначала перестаём принимать запросы, затем останавливаем воркеры
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}

	cancel()
	workersWg.Wait()

	if recheckConsumer != nil {
		if err := recheckConsumer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Consumer")
		}
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
		}
	}

	if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия MySQL")
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
		metricsWg.Wait()
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Payment Service остановлен")
}
