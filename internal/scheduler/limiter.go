package scheduler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps events per key to no more than one per interval, the
// shape of §3's per-contestant submission/user-test rate limits
// (Contest.SubmissionRateLimit / Contest.UserTestRateLimit, each a minimum
// spacing rather than a sustained rate). Adapted from the source control
// plane's TokenBucketLimiter.
type RateLimiter interface {
	// Allow reports whether an event for key may proceed now, given that
	// events for key must be spaced at least interval apart. interval <= 0
	// means "no limit configured", always true.
	Allow(key string, interval time.Duration) bool
}

// TokenBucketLimiter keeps one token bucket per key, created lazily on
// first use with a burst of 1: a contest's rate limit is a strict minimum
// spacing, not a sustained throughput, so a key never accumulates more
// than one token.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTokenBucketLimiter returns a limiter with no per-key buckets yet.
func NewTokenBucketLimiter() *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *TokenBucketLimiter) ensure(key string, interval time.Duration) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether an event for key may proceed now.
func (l *TokenBucketLimiter) Allow(key string, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	return l.ensure(key, interval).Allow()
}
