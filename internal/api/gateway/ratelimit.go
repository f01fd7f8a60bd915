// Package gateway provides API gateway functionality including rate limiting
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lvonguyen/reconlens/internal/observability"
)

// RateLimiter limits requests to the service's own API per client. It
// counts in Redis when a client is supplied and in-process otherwise.
type RateLimiter struct {
	redis       *redis.Client
	logger      *zap.Logger
	metrics     *observability.Metrics
	config      RateLimitConfig
	localLimits sync.Map // key -> *localEntry
	now         func() time.Time
}

// localEntry is one in-process bucket. lastSeen holds unix nanoseconds.
type localEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// localIdleTTL is how long an unused bucket is kept. A bucket refills
// completely within a minute, so dropping it after that loses no state.
const localIdleTTL = 2 * time.Minute

// unmatchedRoute buckets every path that no route matches.
const unmatchedRoute = "unmatched"

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
	IncludeHeaders    bool
	// EndpointCosts divides the per-minute budget for expensive routes,
	// keyed "METHOD:/path".
	EndpointCosts map[string]int
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
	Reason     string
}

// NewRateLimiter creates a new rate limiter. redisClient may be nil.
func NewRateLimiter(redisClient *redis.Client, cfg RateLimitConfig, logger *zap.Logger, metrics *observability.Metrics) *RateLimiter {
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		redis:   redisClient,
		logger:  logger,
		metrics: metrics,
		config:  cfg,
		now:     time.Now,
	}
}

// DefaultEndpointCosts returns default cost multipliers for the heavier
// enrichment routes.
func DefaultEndpointCosts() map[string]int {
	return map[string]int{
		"POST:/api/v1/deep-dive": 2,
		"POST:/api/v1/bulk":      5,
	}
}

// limitFor returns the effective per-minute budget for an endpoint.
func (rl *RateLimiter) limitFor(endpoint, method string) int {
	limit := rl.config.RequestsPerMinute
	if cost := rl.config.EndpointCosts[method+":"+endpoint]; cost > 1 {
		limit /= cost
	}
	return max(limit, 1)
}

// Check performs a rate limit check
func (rl *RateLimiter) Check(ctx context.Context, clientID, endpoint, method string) (*RateLimitResult, error) {
	limit := rl.limitFor(endpoint, method)
	if rl.redis == nil {
		return rl.checkLocal(clientID, endpoint, method, limit), nil
	}

	redisKey := fmt.Sprintf("reconlens:ratelimit:%s:%s:%s:minute", clientID, method, endpoint)
	now := rl.now()

	script := redis.NewScript(`
		local current = redis.call('INCR', KEYS[1])
		if current == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return current
	`)

	result, err := script.Run(ctx, rl.redis, []string{redisKey}, 60000).Int()
	if err != nil {
		rl.logger.Warn("Rate limit check failed, falling back to local limiter", zap.Error(err))
		return rl.checkLocal(clientID, endpoint, method, limit), nil
	}

	allowed := result <= limit
	remaining := max(limit-result, 0)

	ttl, _ := rl.redis.PTTL(ctx, redisKey).Result()
	if ttl < 0 {
		ttl = time.Minute
	}

	res := &RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   now.Add(ttl),
	}
	if !allowed {
		res.RetryAfter = ttl
		res.Reason = "Rate limit exceeded"
	}
	return res, nil
}

// checkLocal applies an in-process token bucket refilled at limit per
// minute.
func (rl *RateLimiter) checkLocal(clientID, endpoint, method string, limit int) *RateLimitResult {
	key := clientID + "|" + method + ":" + endpoint
	now := rl.now()

	v, ok := rl.localLimits.Load(key)
	if !ok {
		burst := min(rl.config.BurstSize, limit)
		entry := &localEntry{limiter: rate.NewLimiter(rate.Limit(float64(limit)/60.0), burst)}
		v, _ = rl.localLimits.LoadOrStore(key, entry)
	}
	entry := v.(*localEntry)
	entry.lastSeen.Store(now.UnixNano())
	limiter := entry.limiter

	res := &RateLimitResult{Limit: limit}

	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		res.RetryAfter = delay
		res.ResetAt = now.Add(delay)
		res.Reason = "Rate limit exceeded"
		return res
	}

	res.Allowed = true
	res.Remaining = int(limiter.TokensAt(now))
	res.ResetAt = now
	return res
}

// Sweep drops in-process buckets idle for longer than idle and returns how
// many were removed.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	cutoff := rl.now().Add(-idle).UnixNano()
	removed := 0
	rl.localLimits.Range(func(k, v any) bool {
		if v.(*localEntry).lastSeen.Load() < cutoff {
			rl.localLimits.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// StartJanitor sweeps idle buckets every interval until ctx is done.
func (rl *RateLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.Sweep(localIdleTTL); n > 0 {
					rl.logger.Debug("Swept idle rate limit buckets", zap.Int("count", n))
				}
			}
		}
	}()
}

func (rl *RateLimiter) localSize() int {
	n := 0
	rl.localLimits.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Middleware returns an HTTP middleware for rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := routePattern(r)
		result, err := rl.Check(r.Context(), getClientIP(r), endpoint, r.Method)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if rl.config.IncludeHeaders {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		}

		if !result.Allowed {
			rl.metrics.ObserveRateLimited(endpoint)
			retry := int(result.RetryAfter.Round(time.Second).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate_limit_exceeded","message":"%s","retry_after":%d}`,
				result.Reason, max(retry, 1))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// routePattern resolves the request to its registered chi pattern so that
// arbitrary paths share one bucket.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return unmatchedRoute
	}
	if pattern := rctx.Routes.Find(chi.NewRouteContext(), r.Method, r.URL.Path); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

// getClientIP returns the connection's address. Forwarding headers are
// only honoured when middleware.RealIP has already rewritten RemoteAddr.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
