package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/desthealth/claims/internal/platform/auth"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newLimited(cfg RateLimitConfig, clock *fakeClock) (*rateLimiterStore, echo.HandlerFunc) {
	store := newRateLimiterStore(cfg, clock.now)
	h := rateLimit(store)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return store, h
}

func doLimited(h echo.HandlerFunc, userID string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/claims", nil)
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), userID, nil))
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	_, h := newLimited(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5}, clock)

	for i := 0; i < 5; i++ {
		rec, err := doLimited(h, "")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	_, h := newLimited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}, clock)

	for i := 0; i < 2; i++ {
		if _, err := doLimited(h, ""); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := doLimited(h, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	retry, perr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if perr != nil || retry < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_RefillsOverTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	_, h := newLimited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, clock)

	if _, err := doLimited(h, "u1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := doLimited(h, "u1"); err == nil {
		t.Fatal("expected second request to be limited")
	}
	clock.advance(time.Second)
	if _, err := doLimited(h, "u1"); err != nil {
		t.Fatalf("expected refill after one second, got %v", err)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	_, h := newLimited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, clock)

	if _, err := doLimited(h, "patient-a"); err != nil {
		t.Fatalf("patient-a first request: %v", err)
	}
	if _, err := doLimited(h, "patient-a"); err == nil {
		t.Fatal("patient-a second request: expected rate limit error")
	}
	if _, err := doLimited(h, "patient-b"); err != nil {
		t.Fatalf("patient-b first request should have its own bucket: %v", err)
	}
	if _, err := doLimited(h, ""); err != nil {
		t.Fatalf("anonymous caller should be keyed by IP: %v", err)
	}
}

func TestRateLimit_SweepsIdleBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	store, h := newLimited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute}, clock)

	_, _ = doLimited(h, "a")
	_, _ = doLimited(h, "b")
	if store.size() != 2 {
		t.Fatalf("expected 2 buckets, got %d", store.size())
	}

	clock.advance(2 * time.Minute)
	_, _ = doLimited(h, "c")
	if store.size() != 1 {
		t.Errorf("expected idle buckets to be swept, got %d", store.size())
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("expected RequestsPerSecond 100, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("expected BurstSize 200, got %d", cfg.BurstSize)
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := newTokenBucket(0, 1, now)
	if ok, _ := b.take(now); !ok {
		t.Fatal("expected first token")
	}
	ok, ra := b.take(now.Add(time.Hour))
	if ok || ra != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got ok=%v ra=%d", ok, ra)
	}
}
