package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowEnforcesBurstPerUserAndAction(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"mark_read": {PerMinute: 1, Burst: 2}})

	ok, _ := rl.Allow("u1", "mark_read")
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", "mark_read")
	assert.True(t, ok)

	ok, wait := rl.Allow("u1", "mark_read")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Minute)

	ok, _ = rl.Allow("u2", "mark_read")
	assert.True(t, ok, "other users have their own bucket")
	ok, _ = rl.Allow("u1", "send_message")
	assert.True(t, ok, "unknown actions use the fallback limit")
}

func TestRejectedRequestsDoNotConsumeTokens(t *testing.T) {
	rl := NewRateLimiter(map[string]Limit{"a": {PerMinute: 60, Burst: 1}})

	ok, _ := rl.Allow("u1", "a")
	assert.True(t, ok)
	for i := 0; i < 5; i++ {
		ok, _ = rl.Allow("u1", "a")
		assert.False(t, ok)
	}

	assert.Eventually(t, func() bool {
		ok, _ := rl.Allow("u1", "a")
		return ok
	}, 3*time.Second, 100*time.Millisecond)
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(nil)
	rl.Allow("u1", "a")
	rl.Allow("u2", "a")

	rl.Cleanup(time.Hour)
	assert.Len(t, rl.buckets, 2)

	rl.Cleanup(-time.Second)
	assert.Empty(t, rl.buckets)
}
