package frontend

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:signin:"

// RateLimiter counts attempts per client IP in fixed Redis windows.
type RateLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewRateLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow records an attempt of ip and reports whether it is within the limit.
// Redis failures let the attempt through.
func (l *RateLimiter) Allow(ctx context.Context, ip string) (bool, int) {
	if l.client == nil || l.maxAttempts <= 0 {
		return true, l.maxAttempts
	}

	key := rateLimitKeyPrefix + ip
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("RateLimiter: failed to count attempt", "ip", ip, "error", err)
		return true, l.maxAttempts
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			slog.Warn("RateLimiter: failed to set window", "ip", ip, "error", err)
		}
	}

	remaining := l.maxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= l.maxAttempts, remaining
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		allowed, remaining := l.Allow(ctx.Request().Context(), ctx.RealIP())
		ctx.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(l.maxAttempts))
		ctx.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			slog.Warn("RateLimiter: too many sign in attempts", "ip", ctx.RealIP(), "status", http.StatusTooManyRequests)
			ctx.Response().Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			return ctx.String(http.StatusTooManyRequests, "Too many sign in attempts. Please try again later.")
		}
		return next(ctx)
	}
}
