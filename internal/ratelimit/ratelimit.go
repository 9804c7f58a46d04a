// Package ratelimit is the outer, abuse-facing request limiter.
//
// Buckets are keyed by client IP, or by credential prefix when one is
// presented, so a NAT'd office of distinct keys does not share one IP
// bucket. The per-plan RPM ceiling on metered routes is enforced
// separately by the keys middleware.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config sets the sustained rate and burst headroom.
type Config struct {
	RequestsPerMinute int
	BurstSize         int
	// CleanupInterval controls how often idle buckets are swept.
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 300,
		BurstSize:         30,
		CleanupInterval:   time.Minute,
	}
}

// bucket is a token bucket refilled continuously from the sustained rate.
type bucket struct {
	allowance float64
	updated   time.Time
}

// Limiter holds one bucket per client key.
type Limiter struct {
	cfg   Config
	mu    sync.Mutex
	byKey map[string]*bucket
	stop  chan struct{}
}

func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:   cfg,
		byKey: make(map[string]*bucket),
		stop:  make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, b := range l.byKey {
				if now.Sub(b.updated) > 2*time.Minute {
					delete(l.byKey, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Allow spends one token from the key's bucket if available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.byKey[key]
	if !ok {
		l.byKey[key] = &bucket{
			allowance: float64(l.cfg.BurstSize) - 1,
			updated:   now,
		}
		return true
	}

	perSecond := float64(l.cfg.RequestsPerMinute) / 60.0
	b.allowance += now.Sub(b.updated).Seconds() * perSecond
	if ceiling := float64(l.cfg.BurstSize); b.allowance > ceiling {
		b.allowance = ceiling
	}
	b.updated = now

	if b.allowance < 1 {
		return false
	}
	b.allowance--
	return true
}

// Middleware rejects over-limit requests with 429 before routing.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			if len(apiKey) > 20 {
				apiKey = apiKey[:20]
			}
			key = "key:" + apiKey
		}

		if !l.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
