package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginRateLimiterBurst(t *testing.T) {
	rl := NewLoginRateLimiter(5)
	defer rl.Stop()

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("10.0.0.1:12345") {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("allowed %d attempts, want burst of 5", allowed)
	}
}

func TestLoginRateLimiterPerIP(t *testing.T) {
	rl := NewLoginRateLimiter(1)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1:1") {
		t.Fatal("first attempt from first IP denied")
	}
	if rl.Allow("10.0.0.1:2") {
		t.Error("second attempt from same IP allowed, port should not matter")
	}
	if !rl.Allow("10.0.0.2:1") {
		t.Error("attempt from a different IP denied")
	}
}

func TestLoginRateLimiterMiddleware(t *testing.T) {
	rl := NewLoginRateLimiter(1)
	defer rl.Stop()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.RemoteAddr = "10.0.0.9:4444"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
}
