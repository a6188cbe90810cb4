package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
)

const maxTrackedClients = 10000

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu             sync.Mutex
	clients        map[string]*client
	limit          rate.Limit
	burst          int
	idle           time.Duration
	trustedProxies []*net.IPNet
	now            func() time.Time
	stop           chan struct{}
	stopOnce       sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter returns a limiter allowing limit requests per second with
// the given burst. Clients idle for twice the idle interval are forgotten.
// trustedProxies lists CIDRs or single IPs whose forwarding headers are
// believed; when empty the peer address is always used.
func NewIPRateLimiter(limit rate.Limit, burst int, idle time.Duration, trustedProxies []string) *IPRateLimiter {
	l := &IPRateLimiter{
		clients:        make(map[string]*client),
		limit:          limit,
		burst:          burst,
		idle:           idle,
		trustedProxies: parseNetworks(trustedProxies),
		now:            time.Now,
		stop:           make(chan struct{}),
	}
	go l.sweep()
	return l
}

// PerWindow allows n requests per window per IP, refilling evenly. The
// booking endpoint uses PerWindow(3, 15*time.Minute).
func PerWindow(n int, window time.Duration, trustedProxies []string) *IPRateLimiter {
	return NewIPRateLimiter(rate.Every(window/time.Duration(n)), n, window, trustedProxies)
}

// Stop ends the background sweep.
func (l *IPRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func parseNetworks(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Allow consumes one token for ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.limiterFor(ip).AllowN(l.now(), 1)
}

func (l *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.evictOldest()
		}
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (l *IPRateLimiter) evictOldest() {
	var oldest string
	var oldestSeen time.Time
	for ip, c := range l.clients {
		if oldest == "" || c.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = ip, c.lastSeen
		}
	}
	delete(l.clients, oldest)
}

func (l *IPRateLimiter) sweep() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.forgetIdle()
		}
	}
}

func (l *IPRateLimiter) forgetIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.idle)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

// Middleware rejects over-limit requests with a 429 JSON envelope and a
// Retry-After header.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(l.clientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				httperrors.Write(w, r, httperrors.New(httperrors.CodeRateLimited, "too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *IPRateLimiter) retryAfter() int {
	if l.limit <= 0 || l.limit == rate.Inf {
		return 1
	}
	interval := time.Duration(float64(time.Second) / float64(l.limit))
	if secs := int(interval.Round(time.Second) / time.Second); secs > 1 {
		return secs
	}
	return 1
}

func (l *IPRateLimiter) clientIP(r *http.Request) string {
	remote := parseIP(r.RemoteAddr)

	if !l.trusted(remote) {
		return ipString(remote, r.RemoteAddr)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return ipString(remote, r.RemoteAddr)
}

func (l *IPRateLimiter) trusted(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range l.trustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}

func ipString(ip net.IP, fallback string) string {
	if ip == nil {
		return fallback
	}
	return ip.String()
}
