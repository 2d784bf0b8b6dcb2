package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/crypto-checkout/pkg/metrics"
	"example.com/crypto-checkout/services/payment/internal/middleware"
)

const serviceName = "payment"

// ReadinessChecker — проверка готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Paths — пути webhook и промежуточных страниц возврата.
type Paths struct {
	Callback string
	Success  string
	Cancel   string
}

// RouterConfig — зависимости роутера. Nil RateLimiter отключает ограничение.
type RouterConfig struct {
	Issuer          InvoiceIssuer
	Reconciler      Reconciler
	Notifications   NotificationHandler
	Forward         ForwardVerifier
	RateLimiter     *middleware.RateLimiter
	Paths           Paths
	SignatureHeader string
	MaxBodyBytes    int64
	CORSOrigins     []string
	ReadinessCheck  ReadinessChecker
	Debug           bool
}

// Router — HTTP роутер платёжного API.
type Router struct {
	engine *gin.Engine
	cfg    RouterConfig
}

// NewRouter создаёт и настраивает роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(metrics.GinMetricsMiddleware(serviceName))
	engine.Use(middleware.RequestContext())

	r := &Router{engine: engine, cfg: cfg}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/healthz", r.livenessCheck)
	r.engine.GET("/readyz", r.readinessCheckHandler)

	// уведомления процессора не ограничиваются по IP
	webhook := NewWebhookHandler(r.cfg.Notifications, r.cfg.SignatureHeader, r.cfg.MaxBodyBytes)
	r.engine.POST(r.cfg.Paths.Callback, webhook.Notify)

	redirect := NewRedirectHandler(r.cfg.Reconciler, r.cfg.Forward)
	r.engine.GET(r.cfg.Paths.Success, redirect.Success)
	r.engine.GET(r.cfg.Paths.Cancel, redirect.Cancel)

	v1 := r.engine.Group("/api/v1")
	if r.cfg.RateLimiter != nil {
		v1.Use(r.cfg.RateLimiter.Handle())
	}

	invoices := NewInvoiceHandler(r.cfg.Issuer)
	v1.POST("/invoices", invoices.CreateInvoice)

	status := NewStatusHandler(r.cfg.Reconciler)
	orders := v1.Group("/orders/:order_id")
	{
		orders.GET("/status", status.GetStatus)
		orders.GET("/reconciliation", status.GetReconciliation)
	}
}

// Engine возвращает gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// livenessCheck отвечает 200, пока процесс жив.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler проверяет зависимости с таймаутом 5 секунд.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.cfg.ReadinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.cfg.ReadinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
