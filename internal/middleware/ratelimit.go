package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/metrics"
)

// RateLimit allows limit requests per window for each client, counted in
// Redis with a fixed window. Authenticated requests are keyed by user ID,
// anonymous ones by remote address, so it should run after RequireAuth
// and after chi's RealIP.
//
// Redis errors let the request through. A nil client disables limiting.
// EXPIRE NX needs Redis 7 or later.
func RateLimit(rdb redis.UniversalClient, name string, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rdb == nil || limit <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ratelimit:" + name + ":" + clientID(r)

			// EXPIRE NX arms the window on the first hit and re-arms it on a
			// counter that somehow lost its TTL, without sliding a live one.
			var incr *redis.IntCmd
			var ttlCmd *redis.DurationCmd
			_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(ctx, key)
				pipe.ExpireNX(ctx, key, window)
				ttlCmd = pipe.TTL(ctx, key)
				return nil
			})
			if err != nil {
				logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			count := incr.Val()

			ttl := ttlCmd.Val()
			if ttl < 0 {
				ttl = window
			}

			remaining := limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

			if count > int64(limit) {
				metrics.RateLimited.WithLabelValues(name).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(ttl)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "too many requests, try again in " + ttl.Round(time.Second).String(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientID(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return "uid:" + p.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func retryAfter(ttl time.Duration) int {
	secs := int((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
