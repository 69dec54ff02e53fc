package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-key (group or private chat) request limits using token bucket.
type RateLimiter struct {
	limiters sync.Map // key → *limiterEntry
	limits   atomic.Pointer[limits]
	stop     chan struct{}
	once     sync.Once

	cleanupOnce sync.Once
	cleaning    atomic.Bool // cleanup goroutine is running
}

type limits struct {
	r     rate.Limit // refill rate (requests per second)
	burst int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// NewRateLimiter creates a rate limiter.
// rpm is requests per minute, burst is the max burst allowed.
// If rpm <= 0, the rate limiter is effectively disabled (always allows).
// The cleanup goroutine starts with the first tracked key, so a limiter that
// stays disabled owns no goroutine.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	rl := &RateLimiter{stop: make(chan struct{})}
	rl.SetLimits(rpm, burst)
	return rl
}

// SetLimits changes the rate for new and existing keys.
func (rl *RateLimiter) SetLimits(rpm, burst int) {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
	}
	rl.limits.Store(&limits{r: r, burst: burst})

	if r == 0 {
		return
	}
	now := time.Now()
	rl.limiters.Range(func(_, value any) bool {
		entry := value.(*limiterEntry)
		entry.limiter.SetLimitAt(now, r)
		entry.limiter.SetBurstAt(now, burst)
		return true
	})
}

// Allow checks if a request from the given key is allowed.
// Returns true if allowed, false if rate limited.
func (rl *RateLimiter) Allow(key string) bool {
	l := rl.limits.Load()
	if l.r == 0 {
		return true // disabled
	}
	entry := rl.getOrCreate(key, l)
	entry.lastSeen.Store(time.Now().UnixNano())
	if !entry.limiter.Allow() {
		slog.Warn("gateway.rate_limited", "key", key)
		return false
	}
	return true
}

// Enabled returns true if the rate limiter is active.
func (rl *RateLimiter) Enabled() bool {
	return rl.limits.Load().r > 0
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getOrCreate(key string, l *limits) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{limiter: rate.NewLimiter(l.r, l.burst)}
	entry.lastSeen.Store(time.Now().UnixNano())
	actual, loaded := rl.limiters.LoadOrStore(key, entry)
	if !loaded {
		rl.startCleanup()
	}
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) startCleanup() {
	rl.cleanupOnce.Do(func() {
		select {
		case <-rl.stop:
			return
		default:
		}
		rl.cleaning.Store(true)
		go rl.cleanupLoop()
	})
}

// cleanupLoop drops stale entries every 5 minutes until Stop.
func (rl *RateLimiter) cleanupLoop() {
	defer rl.cleaning.Store(false)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-10 * time.Minute))
		}
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		if entry.lastSeen.Load() < cutoff.UnixNano() {
			rl.limiters.Delete(key)
		}
		return true
	})
}
