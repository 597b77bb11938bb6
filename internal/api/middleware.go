package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/auditlog/internal/auth"
	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/metrics"
	"github.com/gyaneshwarpardhi/auditlog/internal/writer"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDMiddleware propagates X-Request-ID, minting one when the caller sent none.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one line per request and counts it by route pattern.
func loggingMiddleware(log *slog.Logger, mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, route := mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestID(r.Context()),
		)
	})
}

// authMiddleware attaches the bearer-token identity, or Guest when no token is sent.
// A token that is present but invalid is rejected with 401.
func authMiddleware(m *auth.Manager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), auth.Guest)))
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}
		id, err := m.Parse(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// ipRateLimiter manages per-address token buckets. Limits are read from the
// live config on every request; a change discards existing buckets.
type ipRateLimiter struct {
	conf     func() config.RateLimitConf
	resolver writer.AddressResolver

	mu        sync.Mutex
	active    config.RateLimitConf
	visitors  map[string]*visitor
	lastSweep time.Time
}

// visitor tracks the rate limiter and last seen time for an address.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorTTL = 3 * time.Minute

func newIPRateLimiter(conf func() config.RateLimitConf, resolver writer.AddressResolver) *ipRateLimiter {
	return &ipRateLimiter{
		conf:      conf,
		resolver:  resolver,
		visitors:  make(map[string]*visitor),
		lastSweep: time.Now(),
	}
}

func (rl *ipRateLimiter) limiter(addr string, conf config.RateLimitConf) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if conf != rl.active {
		rl.active = conf
		clear(rl.visitors)
	}
	if now.Sub(rl.lastSweep) > time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(conf.RPS), max(conf.Burst, 1))}
		rl.visitors[addr] = v
	}
	v.lastSeen = now
	return v.limiter
}

// middleware limits POST /events while server.rate_limit.rps is positive; other routes pass through.
func (rl *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/events" {
			if conf := rl.conf(); conf.RPS > 0 && !rl.limiter(rl.resolver.Resolve(r), conf).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
