package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRateLimitedRouter(limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limiter.Middleware())
	r.POST("/patient", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return r
}

func postFrom(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/patient", nil)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_WithoutRedis(t *testing.T) {
	limiter := NewRateLimiter(nil, RateLimitConfig{Limit: 5, Window: 15 * time.Minute}, zap.NewNop())
	r := newRateLimitedRouter(limiter)

	// Without Redis, all requests should be allowed
	for i := 0; i < 10; i++ {
		w := postFrom(r, "192.168.1.1:1234")
		if w.Code != http.StatusOK {
			t.Errorf("Request %d: expected status 200, got %d", i+1, w.Code)
		}
	}
}

func TestRateLimiter_DefaultConfig(t *testing.T) {
	limiter := NewRateLimiter(nil, RateLimitConfig{}, nil)
	assert.Equal(t, int64(defaultRateLimit), limiter.config.Limit)
	assert.Equal(t, defaultRateWindow, limiter.config.Window)
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	window := time.Minute
	key := "ratelimit:/patient:192.168.1.1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectTTL(key).SetVal(-1)
	mock.ExpectExpire(key, window).SetVal(true)
	for i := int64(2); i <= 3; i++ {
		mock.ExpectIncr(key).SetVal(i)
		mock.ExpectTTL(key).SetVal(45 * time.Second)
	}

	limiter := NewRateLimiter(rdb, RateLimitConfig{Limit: 2, Window: window}, zap.NewNop())
	r := newRateLimitedRouter(limiter)

	assert.Equal(t, http.StatusOK, postFrom(r, "192.168.1.1:1234").Code)
	assert.Equal(t, http.StatusOK, postFrom(r, "192.168.1.1:1234").Code)

	w := postFrom(r, "192.168.1.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisErrorAllowsRequest(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := "ratelimit:/patient:10.0.0.1"
	mock.ExpectIncr(key).SetErr(errors.New("connection refused"))

	limiter := NewRateLimiter(rdb, RateLimitConfig{Limit: 1, Window: time.Minute}, zap.NewNop())
	r := newRateLimitedRouter(limiter)

	assert.Equal(t, http.StatusOK, postFrom(r, "10.0.0.1:4321").Code)
}

func TestRateLimiter_Reset(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectDel("ratelimit:/patient:192.168.1.1").SetVal(1)

	limiter := NewRateLimiter(rdb, RateLimitConfig{}, zap.NewNop())
	require.NoError(t, limiter.Reset(context.Background(), "192.168.1.1", "/patient"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_ResetNoRedis(t *testing.T) {
	limiter := NewRateLimiter(nil, RateLimitConfig{}, zap.NewNop())
	err := limiter.Reset(context.Background(), "192.168.1.1", "/patient")
	if err == nil {
		t.Error("Expected error when Redis not available, got nil")
	}
}

func TestRateLimiter_RestoresMissingWindow(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	window := time.Minute
	key := "ratelimit:/patient:192.168.1.2"

	// Counter survived without an expiry; the window is set again.
	mock.ExpectIncr(key).SetVal(4)
	mock.ExpectTTL(key).SetVal(-1)
	mock.ExpectExpire(key, window).SetVal(true)

	limiter := NewRateLimiter(rdb, RateLimitConfig{Limit: 10, Window: window}, zap.NewNop())
	allowed, err := limiter.Allow(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_ExpireErrorAllowsRequest(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := "ratelimit:/patient:10.0.0.2"
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectTTL(key).SetVal(-1)
	mock.ExpectExpire(key, time.Minute).SetErr(errors.New("connection reset"))

	limiter := NewRateLimiter(rdb, RateLimitConfig{Limit: 1, Window: time.Minute}, zap.NewNop())
	r := newRateLimitedRouter(limiter)

	assert.Equal(t, http.StatusOK, postFrom(r, "10.0.0.2:4321").Code)
}
