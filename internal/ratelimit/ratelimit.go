// Package ratelimit throttles RSVP submissions per client with a fixed
// window counter kept in redis.
package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const MsgRateLimited = "Too many submissions. Please try again in a minute."

// Allower decides whether another request for key fits in the budget.
type Allower interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Limiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
}

// New creates a limiter allowing limit requests per window and key
func New(rdb redis.Cmdable, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: int64(limit), window: window}
}

// Allow counts a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := "rl:rsvp:" + key
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}

// Middleware limits POST requests by client address. Other methods pass
// through untouched. A limiter outage lets requests through. Forwarded
// addresses are only believed from trustedProxies.
func Middleware(a Allower, trustedProxies []string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientKey(r, trustedProxies)
			ok, err := a.Allow(r.Context(), key)
			if err != nil {
				log.Warn().Err(err).Str("client", key).Msg("Rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": MsgRateLimited})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller by the connection's remote host. When
// that host is a trusted proxy, the nearest X-Forwarded-For hop that is
// not itself a trusted proxy is used instead.
func ClientKey(r *http.Request, trustedProxies []string) string {
	host := remoteHost(r)
	if !slices.Contains(trustedProxies, host) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !slices.Contains(trustedProxies, hop) {
			return hop
		}
	}
	return host
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
