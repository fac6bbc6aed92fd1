// Package throttle rate-limits login attempts per client IP before any
// credential work happens. It is a pre-auth guard on top of the per-account
// lockout, not a replacement for it.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the throttle backend is unreachable.
var ErrUnavailable = errors.New("throttle backend unavailable")

// Limiter counts login attempts per IP in a fixed redis window.
type Limiter struct {
	redis  redis.UniversalClient
	max    int
	window time.Duration
}

// NewLimiter creates a login throttle over the given redis client.
func NewLimiter(client redis.UniversalClient, max int, window time.Duration) *Limiter {
	return &Limiter{redis: client, max: max, window: window}
}

func (l *Limiter) key(ip string) string {
	return "lgn:" + ip
}

// Allow counts one attempt for ip and reports whether it is within the
// limit, with the time left in the window when it is not.
func (l *Limiter) Allow(ctx context.Context, ip string) (bool, time.Duration, error) {
	if ip == "" {
		return true, 0, nil
	}

	count, err := l.redis.Incr(ctx, l.key(ip)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		// TTL on first attempt makes the counter a rolling fixed window.
		if err := l.redis.Expire(ctx, l.key(ip), l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(l.max) {
		ttl, err := l.redis.TTL(ctx, l.key(ip)).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}
