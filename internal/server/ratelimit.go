package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Per-client buckets idle for clientTTL are dropped.
const (
	clientTTL      = 5 * time.Minute
	clientSweepInt = time.Minute
)

// RateLimit is a per-client token bucket. A non-positive RPS disables it.
type RateLimit struct {
	// RPS is the sustained request rate per client IP.
	RPS float64
	// Burst is the bucket size. Values below 1 are raised to 1.
	Burst int
}

// Enabled reports whether the limit applies.
func (l RateLimit) Enabled() bool { return l.RPS > 0 }

// routeLimiter throttles one route per client IP. Answering a question and
// indexing documents are priced differently, so each protected route gets its
// own limiter and a client's ingest calls never consume its query budget.
type routeLimiter struct {
	route   string
	limit   rate.Limit
	burst   int
	clients *cache.Cache
	limited prometheus.Counter
}

// newRouteLimiter returns nil when l is disabled; a nil *routeLimiter passes
// every request through.
func newRouteLimiter(route string, l RateLimit, limited *prometheus.CounterVec) *routeLimiter {
	if !l.Enabled() {
		return nil
	}
	return &routeLimiter{
		route:   route,
		limit:   rate.Limit(l.RPS),
		burst:   max(1, l.Burst),
		clients: cache.New(clientTTL, clientSweepInt),
		limited: limited.WithLabelValues(route),
	}
}

// bucket returns the client's limiter and extends its lifetime.
func (rl *routeLimiter) bucket(ip string) *rate.Limiter {
	if v, ok := rl.clients.Get(ip); ok {
		lim := v.(*rate.Limiter)
		rl.clients.SetDefault(ip, lim)
		return lim
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.clients.Add(ip, lim, cache.DefaultExpiration); err != nil {
		if v, ok := rl.clients.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// middleware rejects requests over the client's budget with 429 and a
// Retry-After of the whole seconds until a token is available.
func (rl *routeLimiter) middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		res := rl.bucket(ip).Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			rl.limited.Inc()
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("route", rl.route),
				slog.Duration("retry_after", delay),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded for "+rl.route)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the request's remote address without the port.
// X-Forwarded-For is not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
