package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"backoffice/internal/apperr"

	"github.com/gin-gonic/gin"
)

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window counter per client key
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow counts one hit for key and reports whether it fits the window,
// plus the time left until the window resets
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.limit, w.resetAt.Sub(now)
}

// Sweep drops expired windows until ctx is done
func (l *RateLimiter) Sweep(ctx context.Context) {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictExpired()
		}
	}
}

func (l *RateLimiter) evictExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Middleware limits requests per client IP within the named group
func (l *RateLimiter) Middleware(group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit <= 0 {
			c.Next()
			return
		}
		ok, retryAfter := l.Allow(group + "|" + c.ClientIP())
		if !ok {
			seconds := int(retryAfter.Round(time.Second).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			abortWithError(c, apperr.New(apperr.CodeRateLimitExceeded, "too many requests, retry in %d seconds", seconds))
			return
		}
		c.Next()
	}
}
