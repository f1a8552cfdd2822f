package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/npezzotti/go-echo/internal/stats"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out a token bucket per client and route. Buckets unused
// for longer than ttl are dropped.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[string]*keyLimiter
	limit rate.Limit
	burst int
	ttl   time.Duration
	stop  chan struct{}
}

func NewRateLimiter(limit rate.Limit, burst int, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		m:     make(map[string]*keyLimiter),
		limit: limit,
		burst: burst,
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go rl.gc()

	return rl
}

// Allow reports whether the key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key).Allow()
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if kl, ok := rl.m[key]; ok {
		kl.seen = time.Now()
		return kl.lim
	}

	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.m[key] = &keyLimiter{lim: lim, seen: time.Now()}
	return lim
}

func (rl *RateLimiter) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.prune(time.Now())
		}
	}
}

func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for k, v := range rl.m {
		if now.Sub(v.seen) > rl.ttl {
			delete(rl.m, k)
		}
	}
}

func (rl *RateLimiter) Stop() {
	select {
	case <-rl.stop:
	default:
		close(rl.stop)
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

// rateLimit rejects writes from a client that exceeded its bucket for the
// route. A nil limiter disables limiting.
func (s *EchoApp) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			key := clientIP(r.RemoteAddr) + "|" + r.Method + " " + r.URL.Path
			if !s.limiter.Allow(key) {
				s.stats.Incr(stats.RateLimited)
				errResp := NewTooManyRequestsError()
				w.Header().Set("Retry-After", "1")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}

		next(w, r)
	}
}
