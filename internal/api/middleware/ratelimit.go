package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements a fixed-window in-memory rate limiter keyed by
// client IP. For multi-instance deployments a shared store would be needed;
// a single gateway instance only needs local state.
type RateLimiter struct {
	clients  map[string]*clientWindow
	requests int
	window   time.Duration
	mu       sync.Mutex
}

type clientWindow struct {
	resetTime time.Time
	count     int
}

// NewRateLimiter creates a rate limiter allowing requests per window.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*clientWindow),
		requests: requests,
		window:   window,
	}
}

// StartCleanup launches a background job that drops expired client windows.
// The returned cancel function stops the job.
func (rl *RateLimiter) StartCleanup() context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(rl.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictExpired()
			}
		}
	}()

	return cancel
}

// Middleware returns a rate limiting middleware. Over-budget clients get 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().UTC()

	client, exists := rl.clients[clientID]
	if !exists || now.After(client.resetTime) {
		rl.clients[clientID] = &clientWindow{
			count:     1,
			resetTime: now.Add(rl.window),
		}
		return true
	}

	if client.count < rl.requests {
		client.count++
		return true
	}
	return false
}

func (rl *RateLimiter) evictExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().UTC()
	for clientID, client := range rl.clients {
		if now.After(client.resetTime) {
			delete(rl.clients, clientID)
		}
	}
}

// clientIP extracts the client IP, preferring proxy-supplied headers. Only
// the first X-Forwarded-For hop counts; later hops are proxies.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
