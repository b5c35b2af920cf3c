// internal/handlers/middleware/limits.go
package middleware

import (
	"context"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleClient is how long a client's limiter survives without requests.
const idleClient = 10 * time.Minute

// RateLimit allows requests per window for each client IP, with bursts up to
// the full allowance. Rejected requests get 429 and a Retry-After.
func RateLimit(requests int, window time.Duration, trusted []netip.Prefix) func(http.Handler) http.Handler {
	set := &limiterSet{
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		clients: make(map[string]*clientLimiter),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wait := set.reserve(ClientIP(r, trusted), time.Now())
			if wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per client. Idle buckets are swept
// inline at most once per idleClient.
type limiterSet struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// reserve takes a token for ip and returns zero, or how long the client must
// wait before one is available.
func (s *limiterSet) reserve(ip string, now time.Time) time.Duration {
	s.mu.Lock()
	if now.Sub(s.lastSweep) > idleClient {
		for k, c := range s.clients {
			if now.Sub(c.lastSeen) > idleClient {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}
	c, ok := s.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[ip] = c
	}
	c.lastSeen = now
	s.mu.Unlock()

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// Timeout puts a deadline on the request context. Handlers map the
// resulting context.DeadlineExceeded to 504.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
