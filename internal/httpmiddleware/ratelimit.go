package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tomasen/realip"
)

// TokenBucket is an in-memory per-client rate limiter. Buckets refill
// continuously at rate tokens per minute up to capacity.
type TokenBucket struct {
	capacity float64
	rate     float64
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter allowing perMinute requests per client
// with bursts up to capacity. A non-positive capacity defaults to perMinute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: float64(capacity),
		rate:     float64(perMinute),
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// GinMiddleware rejects requests over the limit with 429. Clients are keyed
// by real IP so proxies forwarding X-Forwarded-For do not share a bucket.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}
		ip := realip.FromRequest(c.Request)
		if ip == "" {
			ip = "unknown"
		}
		if !l.Allow(ip) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit", "retryable": true})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	b.tokens += now.Sub(b.last).Minutes() * l.rate
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Prune forgets buckets idle long enough to be full again.
func (l *TokenBucket) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for key, b := range l.state {
		if b.tokens+now.Sub(b.last).Minutes()*l.rate >= l.capacity {
			delete(l.state, key)
			n++
		}
	}
	return n
}
