// Package ratelimit implements the fixed-window per-IP request limiter
// that runs ahead of classification on every query (COM_QUERY and
// COM_STMT_EXECUTE); other commands are not counted.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/mysql-redis-adapter/internal/metrics"
	"github.com/edvin/mysql-redis-adapter/internal/store"
)

// windowScript atomically increments the per-IP counter and sets its expiry
// only on the increment that creates the key, so later increments within
// the same window never extend it. A non-atomic INCR-then-EXPIRE would
// leave a window where a second client could observe the counter without
// a TTL attached.
const windowScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return current
`

// Limiter enforces a fixed-window request ceiling per client IP.
type Limiter struct {
	store  store.Store
	limit  int64
	window time.Duration
	log    zerolog.Logger
}

// New builds a Limiter. A limit of zero disables rate limiting entirely:
// every request is Allowed without touching the backing store.
func New(s store.Store, limit int, window time.Duration, log zerolog.Logger) *Limiter {
	return &Limiter{store: s, limit: int64(limit), window: window, log: log}
}

// Check runs the fixed-window algorithm for ip and reports whether the
// request is within budget. On backing-store failure it fails open: the
// request is allowed and the error is logged, because an outage of the
// limiter must not black-hole all traffic.
func (l *Limiter) Check(ctx context.Context, ip string) bool {
	if l.limit == 0 {
		return true
	}

	key := "ratelimit:" + ip
	count, err := l.store.Eval(ctx, windowScript, []string{key}, int64(l.window/time.Second))
	if err != nil {
		metrics.RedisErrorsTotal.Inc()
		l.log.Error().Str("operation", "rate_limit_incr").Err(err).Msg("redis_connection_error")
		return true
	}

	if count > l.limit {
		metrics.RateLimitRejectionsTotal.Inc()
		l.log.Warn().
			Str("ip", ip).
			Int64("count", count).
			Int64("limit", l.limit).
			Msg("rate_limit_exceeded")
		return false
	}
	return true
}
