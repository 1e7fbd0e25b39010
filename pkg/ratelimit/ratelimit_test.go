package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_Allow(t *testing.T) {
	mock := clock.NewMock()
	bucket := NewTokenBucket(5, 1, mock) // 5 capacity, 1 refill per second

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, bucket.Allow(), "6th request should be denied")

	mock.Add(500 * time.Millisecond)
	assert.False(t, bucket.Allow(), "half a token is not enough")

	mock.Add(600 * time.Millisecond)
	assert.True(t, bucket.Allow(), "request after refill should be allowed")
}

func TestTokenBucket_AllowN(t *testing.T) {
	mock := clock.NewMock()
	bucket := NewTokenBucket(10, 2, mock)

	assert.True(t, bucket.AllowN(10))
	assert.False(t, bucket.AllowN(1))

	mock.Add(time.Second)
	assert.True(t, bucket.AllowN(2))
	assert.Equal(t, int64(0), bucket.Remaining())

	mock.Add(time.Hour)
	assert.Equal(t, int64(10), bucket.Remaining(), "refill is capped at capacity")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewRateLimiter(3, 1, mock)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("player:1"))
	}
	assert.False(t, limiter.Allow("player:1"))
	assert.True(t, limiter.Allow("player:2"))
	assert.Equal(t, int64(2), limiter.Remaining("player:2"))

	limiter.Reset("player:1")
	assert.True(t, limiter.Allow("player:1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewRateLimiter(3, 1, mock)
	defer limiter.Stop()

	limiter.Allow("stale")
	assert.Equal(t, 1, limiter.GetStats()["active_buckets"])

	mock.Add(11 * time.Minute)
	limiter.cleanup()
	assert.Equal(t, 0, limiter.GetStats()["active_buckets"])
}
