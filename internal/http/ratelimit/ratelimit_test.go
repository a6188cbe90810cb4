package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPerWindowAllowsBurstThenRejects(t *testing.T) {
	l := PerWindow(3, 15*time.Minute, nil)
	defer l.Stop()
	now := time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("203.0.113.7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("203.0.113.7") {
		t.Fatal("fourth request inside the window should be rejected")
	}
	if !l.Allow("198.51.100.1") {
		t.Error("other clients have their own bucket")
	}

	now = now.Add(5 * time.Minute)
	if !l.Allow("203.0.113.7") {
		t.Error("one token should refill after five minutes")
	}
}

func TestMiddlewareWritesEnvelope(t *testing.T) {
	l := PerWindow(1, time.Minute, nil)
	defer l.Stop()
	h := l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/booking/schedule", nil)
	req.RemoteAddr = "203.0.113.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{"no proxies ignores forwarded for", nil, "10.0.0.1:80", "203.0.113.7, 10.0.0.1", "", "10.0.0.1"},
		{"no proxies ignores real ip", nil, "10.0.0.1:80", "", "198.51.100.2", "10.0.0.1"},
		{"real ip from trusted proxy", []string{"10.0.0.0/8"}, "10.0.0.1:80", "", "198.51.100.2", "198.51.100.2"},
		{"remote only", nil, "192.0.2.9:1234", "", "", "192.0.2.9"},
		{"trusted proxy", []string{"10.0.0.0/8"}, "10.1.2.3:80", "203.0.113.7", "", "203.0.113.7"},
		{"trusted single ip", []string{"10.1.2.3"}, "10.1.2.3:80", "203.0.113.7", "", "203.0.113.7"},
		{"untrusted peer ignores headers", []string{"10.0.0.0/8"}, "192.0.2.9:1234", "203.0.113.7", "", "192.0.2.9"},
		{"garbage header", []string{"192.0.2.0/24"}, "192.0.2.9:1234", "not-an-ip", "", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewIPRateLimiter(1, 1, time.Minute, tt.trusted)
			defer l.Stop()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := l.clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForgetIdle(t *testing.T) {
	l := NewIPRateLimiter(1, 1, time.Minute, nil)
	defer l.Stop()
	now := time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("203.0.113.7")
	now = now.Add(3 * time.Minute)
	l.Allow("198.51.100.1")
	l.forgetIdle()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.clients["203.0.113.7"]; ok {
		t.Error("idle client should be forgotten")
	}
	if _, ok := l.clients["198.51.100.1"]; !ok {
		t.Error("recent client should be kept")
	}
}
