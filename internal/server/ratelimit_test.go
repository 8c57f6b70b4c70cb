package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConnectionLimiter(t *testing.T) {
	l := NewGlobalConnectionLimiter(2)

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())

	l.Release()
	assert.True(t, l.Acquire())
	assert.Equal(t, int64(2), l.Current())
}

func TestConnectionRateLimiter_BurstThenThrottle(t *testing.T) {
	l := NewConnectionRateLimiter(1.0, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "burst connection %d should pass", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	// A different IP has its own bucket.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestConnectionRateLimiter_Cleanup(t *testing.T) {
	l := NewConnectionRateLimiter(1.0, 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	require.Equal(t, 2, l.ActiveBuckets())

	// Age one bucket past the idle cutoff and force a cleanup pass.
	l.mu.Lock()
	l.buckets["10.0.0.1"].lastSeen = time.Now().Add(-2 * bucketMaxIdle)
	l.cleanup()
	l.mu.Unlock()

	assert.Equal(t, 1, l.ActiveBuckets())
}
