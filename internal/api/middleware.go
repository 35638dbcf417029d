// internal/api/middleware.go
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	visitors  map[string]*Visitor
	mu        sync.Mutex
	now       func() time.Time
	nextSweep time.Time
}

// Visitor is the window state of one client.
type Visitor struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		now:      time.Now,
	}
}

// Allow consumes one request for key and reports whether it fits the window.
// The returned visitor is a copy for the rate limit headers.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, Visitor) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweepLocked(now)

	visitor, exists := rl.visitors[key]
	if !exists || now.After(visitor.Reset) {
		visitor = &Visitor{Limit: limit, Remaining: limit, Reset: now.Add(window)}
		rl.visitors[key] = visitor
	}
	if visitor.Remaining <= 0 {
		return false, *visitor
	}
	visitor.Remaining--
	return true, *visitor
}

// sweepLocked drops expired windows at most once a minute.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Before(rl.nextSweep) {
		return
	}
	for key, visitor := range rl.visitors {
		if now.After(visitor.Reset) {
			delete(rl.visitors, key)
		}
	}
	rl.nextSweep = now.Add(time.Minute)
}

// RateLimitMiddleware rejects requests above limit per window with 429.
// Keys are scoped by scope so two limits never share a counter.
func RateLimitMiddleware(rl *RateLimiter, scope string, limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, visitor := rl.Allow(scope+":"+keyFunc(c), limit, window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(visitor.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(visitor.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(visitor.Reset.Unix(), 10))

		if !allowed {
			utils.GetLogger().Warn("⛔ Rate limit exceeded", map[string]interface{}{
				"scope":  scope,
				"client": c.ClientIP(),
				"path":   c.FullPath(),
			})
			NewResponseHelper().Error(c, http.StatusTooManyRequests, ErrorRateLimited,
				"Trop de requêtes, veuillez réessayer plus tard")
			c.Abort()
			return
		}
		c.Next()
	}
}

// clientKey prefers an explicit client id header and falls back to the IP.
func clientKey(c *gin.Context) string {
	if id := c.GetHeader("X-Client-ID"); id != "" {
		return id
	}
	return c.ClientIP()
}

// GenerationRateLimit guards the expensive generation endpoints: 10 per hour.
func GenerationRateLimit(rl *RateLimiter) gin.HandlerFunc {
	return RateLimitMiddleware(rl, "generation", 10, time.Hour, clientKey)
}

// DefaultRateLimit applies to every other API route: 100 per minute by IP.
func DefaultRateLimit(rl *RateLimiter) gin.HandlerFunc {
	return RateLimitMiddleware(rl, "default", 100, time.Minute, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs each request through the application logger and
// records it in metrics.
func RequestLogger(metrics *utils.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		latency := time.Since(start)
		status := c.Writer.Status()
		if metrics != nil {
			metrics.RecordAPIRequest(route, c.Request.Method, status, latency)
		}

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"client":     c.ClientIP(),
			"request_id": c.GetString(requestIDKey),
		}
		switch {
		case status >= http.StatusInternalServerError:
			utils.GetLogger().Error("HTTP request", fields)
		case status >= http.StatusBadRequest:
			utils.GetLogger().Warn("HTTP request", fields)
		default:
			utils.GetLogger().Debug("HTTP request", fields)
		}
	}
}

// corsMiddleware allows the page to be served from another origin in development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Client-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
