package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned by Allow when the key exhausted its window quota.
var ErrRateLimited = errors.New("rate limit exceeded")

// Decision is the outcome of a rate-limit check, with everything the HTTP
// layer needs for the X-RateLimit-* headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter int // seconds until the sliding window fully moves past current requests
}

// Limiter is a Redis-backed sliding-window counter. It weighs the previous
// fixed window by its remaining overlap with the sliding interval, so a burst
// at a window boundary cannot double the effective quota.
type Limiter struct {
	rdb       *redis.Client
	window    time.Duration
	keyPrefix string
}

func New(rdb *redis.Client, window time.Duration, keyPrefix string) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if keyPrefix == "" {
		keyPrefix = "rl:key:"
	}
	return &Limiter{rdb: rdb, window: window, keyPrefix: keyPrefix}
}

// Allow counts one request for keyID and decides whether it fits the limit.
// The counter increment and the check run as one pipelined operation so
// concurrent requests from the same key stay correct. When Redis is
// unavailable the limiter fails open, matching the gateway's availability bias.
func (l *Limiter) Allow(ctx context.Context, keyID string, limit int) (Decision, error) {
	if limit <= 0 || l.rdb == nil {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	now := time.Now()
	curStart := now.Truncate(l.window)
	elapsed := now.Sub(curStart)

	curKey := l.bucketKey(keyID, curStart)
	prevKey := l.bucketKey(keyID, curStart.Add(-l.window))

	pipe := l.rdb.Pipeline()
	cur := pipe.Incr(ctx, curKey)
	pipe.Expire(ctx, curKey, l.window*2)
	prev := pipe.Get(ctx, prevKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	prevCount, _ := strconv.ParseInt(prev.Val(), 10, 64)

	d := decide(prevCount, cur.Val(), elapsed, l.window, limit)
	if !d.Allowed {
		return d, ErrRateLimited
	}
	return d, nil
}

func (l *Limiter) bucketKey(keyID string, start time.Time) string {
	return l.keyPrefix + keyID + ":" + strconv.FormatInt(start.Unix(), 10)
}

// decide applies the weighted sliding-window formula. cur already includes the
// request being judged (increment-then-check).
func decide(prev, cur int64, elapsed, window time.Duration, limit int) Decision {
	weight := 1 - float64(elapsed)/float64(window)
	if weight < 0 {
		weight = 0
	}
	weighted := float64(prev)*weight + float64(cur)

	remaining := limit - int(weighted)
	if remaining < 0 {
		remaining = 0
	}

	reset := int((window - elapsed).Seconds()) + 1

	return Decision{
		Allowed:    weighted <= float64(limit),
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: reset,
	}
}
