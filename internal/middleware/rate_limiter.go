package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jzydn/jay-clips-archive/internal/logging"
)

// RateLimiter decides whether a client may issue another request.
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client key. Buckets idle for
// longer than the window are dropped, at most once per window.
type ClientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	lastGC  time.Time
	now     func() time.Time
}

// NewClientLimiter allows each client `requests` requests per `window`,
// plus `burst` requests of headroom.
func NewClientLimiter(requests int, window time.Duration, burst int) *ClientLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if burst <= 0 {
		burst = 1
	}

	return &ClientLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		idle:    window,
		now:     time.Now,
	}
}

// Allow spends one token from key's bucket.
func (l *ClientLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) >= l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.tokens.AllowN(now, 1)
}

// RetryAfter is how long a limited client waits for its next token.
func (l *ClientLimiter) RetryAfter() time.Duration {
	if l.limit <= 0 || l.limit == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// Tracked reports how many client buckets are held.
func (l *ClientLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// WithNowFunc allows tests to override the time source.
func (l *ClientLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// RateLimitOptions tunes the RateLimit middleware.
type RateLimitOptions struct {
	// Exempt lets a request bypass the limiter. It runs before the limiter,
	// so it must be cheap.
	Exempt func(*http.Request) bool
	// TrustedProxies are the peers whose X-Forwarded-For entries are
	// believed. With none, the header is ignored.
	TrustedProxies []netip.Prefix
}

// RateLimit rejects requests beyond the per-client budget with 429.
func RateLimit(limiter RateLimiter, opts RateLimitOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || (opts.Exempt != nil && opts.Exempt(r)) {
				next.ServeHTTP(w, r)
				return
			}

			key := clientIP(r, opts.TrustedProxies)
			if limiter.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			logging.FromContext(r.Context()).Warn("rate limit exceeded", "client", key)
			if cl, ok := limiter.(*ClientLimiter); ok {
				if secs := int(cl.RetryAfter().Round(time.Second) / time.Second); secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"message": "Too many requests, please try again later.",
			})
		})
	}
}

// clientIP keys a request by its peer address. When the peer is a trusted
// proxy, X-Forwarded-For is read right to left and the first hop outside the
// trusted set wins; hops a client prepended itself are never reached.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		remote = host
	}

	peer, err := netip.ParseAddr(remote)
	if err != nil || !isTrusted(peer, trusted) {
		return remote
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			return hop
		}
		if !isTrusted(addr, trusted) {
			return addr.Unmap().String()
		}
	}
	return remote
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
