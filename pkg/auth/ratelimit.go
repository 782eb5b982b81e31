package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an authenticated caller may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	// RequestsPerMinute is the sustained rate, which is also the burst.
	// Zero means unlimited.
	RequestsPerMinute int
}

// LimitError reports a rejected request. It matches ErrTooManyRequests.
type LimitError struct {
	Tier       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for tier %q, retry in %s", e.Tier, e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Is(target error) bool { return target == ErrTooManyRequests }

// idleAfter is how long an unused bucket is kept before it is dropped.
const idleAfter = 10 * time.Minute

// InProcessLimiter keeps one token bucket per subject and tier in memory.
// Buckets refill continuously at the tier's rate.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewInProcessLimiter creates a limiter with per-tier limits. Tiers not
// listed use defaultRPM.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Allow takes one token from the caller's bucket, or returns a *LimitError
// telling how long until one is available.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := tierOf(identity)
	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	now := l.now()
	key := identity.Subject + "\x00" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &LimitError{Tier: tier, RetryAfter: delay}
	}
	return nil
}

// sweep drops idle buckets, at most once per idleAfter. Callers hold l.mu.
func (l *InProcessLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < idleAfter {
		return
	}
	l.swept = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idleAfter {
			delete(l.buckets, key)
		}
	}
}
