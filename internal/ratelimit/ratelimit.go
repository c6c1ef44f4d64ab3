// Package ratelimit implements fixed-window request counting on top of
// the shared KV store. Windows reset by key expiry; there is no
// sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"redux-portal/internal/store"

	"go.uber.org/zap"
)

// Limiter counts requests per scope key in fixed windows. A request is
// denied once the window counter exceeds the configured limit. With a
// limit of 0 the very first request in a window is denied.
type Limiter struct {
	kv     store.KV
	logger *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewLimiter(kv store.KV, logger *zap.Logger) *Limiter {
	return &Limiter{kv: kv, logger: logger, now: time.Now}
}

// IPKey scopes a limit by caller IP for one route.
func IPKey(route, ip string) string {
	return "ip:" + route + ":" + ip
}

// MACKey scopes a limit by (site, normalized device address) for one
// route. The caller passes an already-normalized MAC.
func MACKey(route, siteID, mac string) string {
	return "mac:" + route + ":" + siteID + ":" + mac
}

// Allow increments the counter for scopeKey's current window and
// reports whether the request is within limit. The first increment in
// a window sets the key to expire one second after the window closes.
// A KV failure is returned as an error so callers can fail closed.
func (l *Limiter) Allow(ctx context.Context, scopeKey string, limit int, window time.Duration) (bool, error) {
	windowSecs := int64(window / time.Second)
	if windowSecs <= 0 {
		windowSecs = 1
	}
	bucket := l.now().Unix() / windowSecs
	key := fmt.Sprintf("rl:%s:%d", scopeKey, bucket)

	count, err := l.kv.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.kv.Expire(ctx, key, time.Duration(windowSecs+1)*time.Second); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if count > int64(limit) {
		l.logger.Info("rate limit exceeded",
			zap.String("scope", scopeKey),
			zap.Int64("count", count),
			zap.Int("limit", limit),
		)
		return false, nil
	}
	return true, nil
}
