package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// connLimiter throttles inbound frames on one websocket connection.
// A non-positive limit disables throttling.
type connLimiter struct {
	lim *rate.Limiter
}

func newConnLimiter(perSecond float64, burst int) *connLimiter {
	if perSecond <= 0 {
		return &connLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &connLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *connLimiter) allow() bool {
	if l == nil || l.lim == nil {
		return true
	}
	return l.lim.Allow()
}

const ipLimiterTTL = 2 * time.Minute

type ipEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// ipLimiters keeps one token bucket per client IP and forgets idle ones.
type ipLimiters struct {
	mu        sync.Mutex
	entries   map[string]*ipEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func (l *ipLimiters) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > ipLimiterTTL {
		for k, e := range l.entries {
			if now.Sub(e.seen) > ipLimiterTTL {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.seen = now
	return e.lim
}

// IPRateLimit answers 429 once a client IP exceeds its token bucket.
func IPRateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	limiters := &ipLimiters{
		entries:   make(map[string]*ipEntry),
		limit:     limit,
		burst:     burst,
		lastSweep: time.Now(),
	}
	return func(c *gin.Context) {
		if !limiters.get(remoteIP(c.Request.RemoteAddr), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
