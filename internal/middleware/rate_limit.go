package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiter tracks one token bucket per client IP with last-seen times so
// idle entries can be evicted.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware applies per-IP rate limiting to the public endpoints.
// The submission API sits in front of code guessing, so it gets a budget
// rather than an open door.
type RateLimitMiddleware struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimitMiddleware creates a per-IP limiter allowing requestsPerMinute
// sustained with the given burst.
func NewRateLimitMiddleware(requestsPerMinute, burst int) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Limit enforces the per-IP budget.
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "rate_limited"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *RateLimitMiddleware) allow(ip string) bool {
	m.mu.Lock()
	entry, ok := m.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	m.mu.Unlock()

	return entry.limiter.Allow()
}

func (m *RateLimitMiddleware) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			m.mu.Lock()
			for ip, entry := range m.limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(m.limiters, ip)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// Stop terminates the eviction goroutine. Safe to call more than once.
func (m *RateLimitMiddleware) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}
