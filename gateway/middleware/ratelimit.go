package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"credo/observability"
)

// RateLimit is a token bucket applied per caller. Tokens overrides the cost of
// individual routes keyed as "METHOD /path"; other routes cost DefaultTokens.
type RateLimit struct {
	RatePerSecond float64
	Burst         int
	DefaultTokens int
	Tokens        map[string]int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	logger   *slog.Logger
	limits   map[string]RateLimit
	metrics  *observability.LendingMetrics
	mu       sync.Mutex
	visitors map[string]*rateEntry
	idleTTL  time.Duration
	lastGC   time.Time
	clockNow func() time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		visitors: make(map[string]*rateEntry),
		idleTTL:  5 * time.Minute,
		clockNow: time.Now,
	}
}

// SetMetrics records throttled requests on m.
func (r *RateLimiter) SetMetrics(m *observability.LendingMetrics) { r.metrics = m }

func (r *RateLimiter) Middleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limit, ok := r.limits[key]
			if !ok {
				next.ServeHTTP(w, req)
				return
			}
			identifier := key + "|" + clientID(req)
			now := r.clockNow()
			limiter := r.obtainLimiter(identifier, limit, now)
			if !limiter.AllowN(now, limit.cost(req)) {
				r.metrics.RecordThrottle(key, "rate_limit")
				r.logger.Debug("request throttled", slog.String("component", key), slog.String("path", req.URL.Path))
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (l RateLimit) cost(req *http.Request) int {
	if tokens, ok := l.Tokens[req.Method+" "+req.URL.Path]; ok && tokens > 0 {
		return tokens
	}
	if l.DefaultTokens > 0 {
		return l.DefaultTokens
	}
	return 1
}

func (r *RateLimiter) obtainLimiter(id string, cfg RateLimit, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictIdle(now)
	entry, ok := r.visitors[id]
	if ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// evictIdle drops callers not seen for idleTTL. It runs at most once per TTL.
func (r *RateLimiter) evictIdle(now time.Time) {
	if now.Sub(r.lastGC) < r.idleTTL {
		return
	}
	r.lastGC = now
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) >= r.idleTTL {
			delete(r.visitors, id)
		}
	}
}

// clientID prefers the API key, then the authenticated subject, then the
// client address.
func clientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if sub := Subject(r.Context()); sub != "" {
		return "sub:" + sub
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
