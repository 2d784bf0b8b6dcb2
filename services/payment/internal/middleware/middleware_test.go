package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/crypto-checkout/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRateLimitedRouter(t *testing.T, limit int) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(NewRateLimiter(RateLimitConfig{Redis: client, Limit: limit, Window: time.Minute}).Handle())
	r.GET("/api/v1/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, mr
}

func doRequest(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.168.1.1:12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// RateLimiter
// =============================================================================

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	r, _ := newRateLimitedRouter(t, 3)

	for i := 0; i < 3; i++ {
		w := doRequest(r, http.MethodGet, "/api/v1/ping", nil)
		assert.Equal(t, http.StatusOK, w.Code, "запрос %d должен пройти", i+1)
	}

	w := doRequest(r, http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	r, mr := newRateLimitedRouter(t, 1)

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/api/v1/ping", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, http.MethodGet, "/api/v1/ping", nil).Code)

	mr.FastForward(61 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/api/v1/ping", nil).Code)
}

func TestRateLimiter_FailOpen(t *testing.T) {
	r, mr := newRateLimitedRouter(t, 1)
	mr.Close()

	w := doRequest(r, http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// RequestContext
// =============================================================================

func TestRequestContext_PropagatesIDs(t *testing.T) {
	var traceID, correlationID string

	r := gin.New()
	r.Use(RequestContext())
	r.GET("/x", func(c *gin.Context) {
		traceID = logger.TraceIDFromContext(c.Request.Context())
		correlationID = logger.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := doRequest(r, http.MethodGet, "/x", map[string]string{HeaderRequestID: "req-1"})
	assert.Equal(t, "req-1", traceID)
	assert.NotEmpty(t, correlationID)
	assert.Equal(t, "req-1", w.Header().Get(HeaderTraceID))
	assert.Equal(t, correlationID, w.Header().Get(HeaderCorrelationID))
}

// =============================================================================
// Recovery, CORS, SecurityHeaders
// =============================================================================

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := doRequest(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"https://shop.example"})))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("разрешённый origin", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/x", map[string]string{"Origin": "https://shop.example"})
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("чужой origin", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/x", map[string]string{"Origin": "https://evil.example"})
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		w := doRequest(r, http.MethodOptions, "/x", map[string]string{"Origin": "https://shop.example"})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, http.MethodGet, "/x", nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
