package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"basebuzz/errs"
	"basebuzz/logger"
)

// RateLimitConfig configures the per client IP token bucket of the auth endpoints.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

const (
	defaultRPS   = 1
	defaultBurst = 5
	// visitorTTL is how long an idle client's bucket is kept.
	visitorTTL = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one token bucket per client IP. Idle buckets are
// swept on access once per visitorTTL, so no background goroutine is needed.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newIPRateLimiter(cfg RateLimitConfig) *ipRateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
		now:      time.Now,
	}
}

// allow reports whether a request of ip may pass now.
func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > visitorTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// rateLimit rejects requests of clients that have used up their bucket.
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := logger.ClientIP(r)
		if !s.limiter.allow(ip) {
			lg := logger.Ctx(r.Context())
			lg.Warn().Str(logger.FieldClientIP, ip).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			errs.ReturnError(w, r, errs.Errorf(errs.ETOOMANYREQUESTS, "Too many requests, slow down."))
			return
		}
		next(w, r)
	}
}
