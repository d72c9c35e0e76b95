package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/perp-engine/internal/metrics"
)

// AccountHeader identifies the caller for rate limiting.
const AccountHeader = "X-Account-ID"

// RateLimiter admits one request per account per interval.
type RateLimiter struct {
	accounts map[string]time.Time
	mu       sync.Mutex
	limit    time.Duration
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		accounts: make(map[string]time.Time),
		limit:    limit,
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.GetHeader(AccountHeader)
		if account == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": AccountHeader + " header required", "reason": "MISSING_ACCOUNT"})
			return
		}
		if r.limit <= 0 {
			c.Next()
			return
		}
		r.mu.Lock()
		last, exists := r.accounts[account]
		if exists && time.Since(last) < r.limit {
			r.mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "reason": "RATE_LIMITED"})
			return
		}
		r.accounts[account] = time.Now()
		r.mu.Unlock()
		c.Next()
	}
}

// Metrics records request latency by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Logger writes one access line per request.
func Logger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"account": c.GetHeader(AccountHeader),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}
