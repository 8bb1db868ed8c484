package frontend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, maxAttempts int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRateLimiter(client, maxAttempts, window), mr
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter, mr := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		if allowed, _ := limiter.Allow(ctx, "10.0.0.1"); allowed != want {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, want, allowed)
		}
	}
	if allowed, remaining := limiter.Allow(ctx, "10.0.0.2"); !allowed || remaining != 1 {
		t.Fatalf("Expected another IP to be counted separately, got %v %d", allowed, remaining)
	}

	mr.FastForward(time.Minute + time.Second)
	if allowed, _ := limiter.Allow(ctx, "10.0.0.1"); !allowed {
		t.Fatalf("Expected the window to reset")
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	mr.Close()

	for i := 0; i < 3; i++ {
		if allowed, _ := limiter.Allow(context.Background(), "10.0.0.1"); !allowed {
			t.Fatalf("Expected attempts to pass while Redis is down")
		}
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	e := echo.New()
	e.POST("/signin", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, limiter.Middleware)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signin", nil))
		codes = append(codes, rec.Code)
		if i == 1 && rec.Header().Get("Retry-After") != "60" {
			t.Fatalf("Expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("Expected [200 429], got %v", codes)
	}
}
