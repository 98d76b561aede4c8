package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, handler http.Handler, remoteAddr string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/imgProxy?url=x", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	handler := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		if code := doRequest(t, handler, "10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, code)
		}
	}
}

func TestRateLimiterRejectsPastBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	handler := rl.Middleware(okHandler())

	doRequest(t, handler, "10.0.0.1:1234")
	doRequest(t, handler, "10.0.0.1:1234")
	if code := doRequest(t, handler, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", code)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(okHandler())

	doRequest(t, handler, "10.0.0.1:1234")
	if code := doRequest(t, handler, "10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("second client blocked by first client's budget: status = %d", code)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond)
	handler := rl.Middleware(okHandler())

	doRequest(t, handler, "10.0.0.1:1234")
	if code := doRequest(t, handler, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 inside window, got %d", code)
	}

	time.Sleep(50 * time.Millisecond)
	if code := doRequest(t, handler, "10.0.0.1:1234"); code != http.StatusOK {
		t.Errorf("request after window reset: status = %d", code)
	}
}

func TestClientIPPrefersForwardedFirstHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("clientIP = %q", got)
	}
}

func TestClientIPStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.4:5678"
	if got := clientIP(req); got != "192.0.2.4" {
		t.Errorf("clientIP = %q", got)
	}
}

func TestStartCleanupEvictsExpiredWindows(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	handler := rl.Middleware(okHandler())
	cancel := rl.StartCleanup()
	defer cancel()

	doRequest(t, handler, "10.0.0.1:1234")

	deadline := time.Now().Add(time.Second)
	for {
		rl.mu.Lock()
		n := len(rl.clients)
		rl.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired client window never evicted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
