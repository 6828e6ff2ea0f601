package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRelayCORSMiddleware_Preflight(t *testing.T) {
	handlerCalled := false
	router := gin.New()
	router.Use(RelayCORSMiddleware())
	router.OPTIONS("/contact", func(c *gin.Context) {
		handlerCalled = true
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/contact", http.NoBody)
	req.Header.Set("Origin", "https://portfolio.example")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "content-type")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.False(t, handlerCalled)
}

func TestRelayCORSMiddleware_Post(t *testing.T) {
	router := gin.New()
	router.Use(RelayCORSMiddleware())
	router.POST("/contact", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", http.NoBody))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/test", func(c *gin.Context) {
		seen = c.GetString(RequestIDKey)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set(RequestIDHeader, "abc-123")
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestBodySizeLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(BodySizeLimitMiddleware(32))
	router.POST("/contact", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"a":"b"}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestObservabilityMiddleware_PassesThrough(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware(), ObservabilityMiddleware("/live"))
	router.GET("/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/contact", func(c *gin.Context) {
		_ = c.Error(errors.New("provider down")) //nolint:errcheck
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimiter_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, rate.Every(time.Hour), 2)
	router := gin.New()
	router.Use(rl.Middleware(func(c *gin.Context) string { return c.GetHeader("X-Forwarded-For") }))
	router.POST("/contact", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/contact", http.NoBody)
		req.Header.Set("X-Forwarded-For", ip)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
}

func TestRateLimiter_BadRequestsKeepTheirToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, rate.Every(time.Hour), 2)
	router := gin.New()
	router.Use(rl.Middleware(func(*gin.Context) string { return "203.0.113.7" }))
	router.POST("/contact", func(c *gin.Context) {
		if c.Query("valid") == "" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	send := func(target string) int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, http.NoBody))
		return w.Code
	}

	for i := 0; i < 7; i++ {
		assert.Equal(t, http.StatusBadRequest, send("/contact"), "request %d", i)
	}
	assert.Equal(t, http.StatusOK, send("/contact?valid=1"))
	assert.Equal(t, http.StatusOK, send("/contact?valid=1"))
	assert.Equal(t, http.StatusTooManyRequests, send("/contact?valid=1"))
}

func TestRateLimiter_RetryAfterReflectsRefill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, rate.Every(time.Minute), 1)
	router := gin.New()
	router.Use(rl.Middleware(func(*gin.Context) string { return "same" }))
	router.POST("/contact", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", http.NoBody))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retryAfter, 1)
}

func TestRateLimiter_Sweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, rate.Every(time.Hour), 1)
	now := time.Now()
	rl.reserve("idle", now)
	rl.reserve("busy", now.Add(90*time.Minute))
	require.Equal(t, 2, rl.size())

	rl.sweep(now.Add(2 * time.Hour))
	assert.Equal(t, 1, rl.size())
}
