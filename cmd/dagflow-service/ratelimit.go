package main

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// ipRateLimiter holds one token-bucket limiter per client IP, generalized
// from the teacher's zerostate-derived rateLimiter (same per-IP
// get-or-create pattern under an RWMutex) onto echo's middleware shape
// instead of gin's.
type ipRateLimiter struct {
	mu        sync.RWMutex
	limiters  map[string]*rate.Limiter
	perMinute int
	burst     int
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &ipRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
		burst:     perMinute,
	}
}

func (rl *ipRateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.limiters[ip]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.limiters[ip]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(rl.perMinute)/60.0, rl.burst)
	rl.limiters[ip] = limiter
	return limiter
}

// middleware rejects requests that exceed the per-IP budget with 429,
// protecting the execution-creation endpoint from bursty callers.
func (rl *ipRateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.limiterFor(c.RealIP()).Allow() {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
