package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/llmproxy/capture-proxy/internal/apierror"
	"github.com/llmproxy/capture-proxy/internal/config"
)

// staleBucketAge is how long an IP's bucket may sit idle before the
// sweeper reclaims it.
const staleBucketAge = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter implements a per-IP token bucket with one rate.Limiter
// per IP: on request, tokens := min(burst, tokens + (now-ts)*rate),
// then if tokens >= 1 decrement and allow, else deny. The bucket of an
// IP seen for the first time starts full (burst tokens), so a new IP
// gets burst requests back to back before the refill rate applies;
// its first request leaves burst-1 tokens.
type IPRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     func() config.Config
}

// NewIPRateLimiter builds a limiter that reads its rate/burst from the
// live config snapshot on every new IP it sees.
func NewIPRateLimiter(cfg func() config.Config) *IPRateLimiter {
	return &IPRateLimiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
	}
}

// Middleware is step 3 of §4.2.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			apierror.Write(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *IPRateLimiter) allow(ip string) bool {
	sec := l.cfg().Security
	limit := sec.Rate
	if limit <= 0 {
		limit = 5
	}
	burst := sec.Burst
	if burst <= 0 {
		burst = 20
	}

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(limit), burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// Sweep drops any IP bucket that hasn't been touched in staleBucketAge,
// bounding the map's memory under a long-running sustained-scan load
// (§5 "periodic sweep to expire stale IP buckets").
func (l *IPRateLimiter) Sweep() {
	cutoff := time.Now().Add(-staleBucketAge)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// StartSweeper runs Sweep on a ticker until stop is closed.
func (l *IPRateLimiter) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
