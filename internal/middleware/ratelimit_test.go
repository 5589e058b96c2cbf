package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:  rate.Limit(1.0 / 60.0),
		GeneralBurst: 3,
		LoginRate:    rate.Limit(1.0 / 60.0),
		LoginBurst:   2,
		IdleTTL:      time.Minute,
	}
}

func requestFrom(method, ip string) *http.Request {
	req := httptest.NewRequest(method, "/login", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func TestRateLimiter_General_AllowsBurstThen429(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", w.Header().Get("Retry-After"))
	}
	if !strings.Contains(w.Body.String(), "Too many requests") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRateLimiter_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 4; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "10.0.0.1"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.2"))
	if w.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_Login_OnlyLimitsPOST(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	handler := rl.LoginMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1"))
		if w.Code != http.StatusOK {
			t.Fatalf("GET status = %d, want 200", w.Code)
		}
	}
	if rl.LoginLimiterCount() != 0 {
		t.Error("GET must not allocate a login limiter")
	}

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodPost, "10.0.0.1"))
		codes = append(codes, w.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != 429 {
		t.Errorf("POST codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimiter_LoginIndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	handler := rl.GeneralMiddleware()(rl.LoginMiddleware()(okHandler()))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodPost, "10.0.0.9"))
	}
	if rl.GeneralLimiterCount() != 1 || rl.LoginLimiterCount() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", rl.GeneralLimiterCount(), rl.LoginLimiterCount())
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)
	if cfg.GeneralRate != rate.Limit(2) || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.LoginBurst != 10 {
		t.Errorf("login burst = %d, want 10", cfg.LoginBurst)
	}
	if DefaultRateLimiterConfig() != cfg {
		t.Error("default config should be 120/10 per minute")
	}
}

func TestClientIP(t *testing.T) {
	if got := clientIP(requestFrom(http.MethodGet, "192.0.2.1")); got != "192.0.2.1" {
		t.Errorf("clientIP = %q", got)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "no-port"
	if got := clientIP(req); got != "no-port" {
		t.Errorf("clientIP = %q, want raw RemoteAddr", got)
	}
}
