package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an IP's limiter is kept after its last request.
const limiterIdleTTL = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters hands out one token bucket per client IP.
type ipLimiters struct {
	mu      sync.Mutex
	entries map[string]*ipLimiter
	limit   rate.Limit
	burst   int
}

func newIPLimiters(maxRequests int, window time.Duration) *ipLimiters {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &ipLimiters{
		entries: make(map[string]*ipLimiter),
		limit:   rate.Every(window / time.Duration(maxRequests)),
		burst:   maxRequests,
	}
}

func (l *ipLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *ipLimiters) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.entries {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.entries, ip)
		}
	}
}

// RateLimit returns middleware that allows each client IP a burst of
// maxRequests, refilled evenly over window. Returns 429 when exceeded.
// Used on the login and registration endpoints.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	limiters := newIPLimiters(maxRequests, window)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for now := range ticker.C {
			limiters.sweep(now)
		}
	}()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiters.allow(c.RealIP(), time.Now()) {
				c.Response().Header().Set("Retry-After", "60")
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "Too Many Requests",
					"message": "Too many attempts. Please wait a minute and try again.",
				})
			}
			return next(c)
		}
	}
}
