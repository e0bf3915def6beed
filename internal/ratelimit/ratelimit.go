// Package ratelimit implements a per-client sliding-window request limiter
// and the gin middleware that enforces it.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Window is the length of the sliding window.
const Window = 60 * time.Second

// Config configures rate limiting.
type Config struct {
	// RequestsPerMinute is the max requests per client within Window.
	RequestsPerMinute int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// DefaultConfig returns 60 requests per minute.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   time.Minute,
	}
}

// Limiter records request timestamps per client key. A request is admitted
// when fewer than RequestsPerMinute timestamps fall inside the last Window.
// Rejected requests are not recorded and never queued.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string][]time.Time
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// New creates a limiter and starts its cleanup goroutine.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		clients: make(map[string][]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, hits := range l.clients {
				if hits = prune(hits, now); len(hits) == 0 {
					delete(l.clients, key)
				} else {
					l.clients[key] = hits
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow admits and records one request for key, or rejects it.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := prune(l.clients[key], now)
	if len(hits) >= l.cfg.RequestsPerMinute {
		l.clients[key] = hits
		return false
	}
	l.clients[key] = append(hits, now)
	return true
}

// Remaining is how many more requests key may make in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	hits := prune(l.clients[key], l.now())
	l.clients[key] = hits
	if r := l.cfg.RequestsPerMinute - len(hits); r > 0 {
		return r
	}
	return 0
}

// Limit returns the configured per-window cap.
func (l *Limiter) Limit() int { return l.cfg.RequestsPerMinute }

// prune drops timestamps older than Window. hits is in ascending order.
func prune(hits []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0:0], hits[i:]...)
}

// Middleware rate limits by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !l.Allow(key) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": int(Window.Seconds()),
			})
			return
		}
		c.Next()
	}
}
