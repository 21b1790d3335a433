package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit describes a token bucket: Burst actions at once, refilled at PerMinute.
type Limit struct {
	PerMinute int
	Burst     int
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user and action.
type RateLimiter struct {
	limits   map[string]Limit
	fallback Limit
	buckets  map[string]*entry
	mutex    sync.Mutex
}

func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	return &RateLimiter{
		limits:   limits,
		fallback: Limit{PerMinute: 60, Burst: 20},
		buckets:  make(map[string]*entry),
	}
}

// Allow reports whether userID may perform action now, and if not how long to wait.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	now := time.Now()
	key := userID + ":" + action

	rl.mutex.Lock()
	e, ok := rl.buckets[key]
	if !ok {
		l, found := rl.limits[action]
		if !found {
			l = rl.fallback
		}
		if l.Burst <= 0 {
			l.Burst = 1
		}
		e = &entry{limiter: rate.NewLimiter(rate.Limit(float64(l.PerMinute)/60), l.Burst)}
		rl.buckets[key] = e
	}
	e.lastSeen = now
	rl.mutex.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup removes buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	now := time.Now()
	for key, e := range rl.buckets {
		if now.Sub(e.lastSeen) > maxIdle {
			delete(rl.buckets, key)
		}
	}
}
