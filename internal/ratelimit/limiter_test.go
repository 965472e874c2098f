package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenBlock(t *testing.T) {
	l := NewLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client-a"), "request %d", i)
	}
	assert.False(t, l.Allow("client-a"))

	// Buckets are per client
	assert.True(t, l.Allow("client-b"))
	assert.InDelta(t, 2.0, l.Tokens("client-b"), 0.01)
	assert.Equal(t, 1, l.RequestsPerHour())
}

func TestLimiter_SameLimiterPerClient(t *testing.T) {
	l := NewLimiter(100, 10)
	assert.Same(t, l.GetLimiter("x"), l.GetLimiter("x"))
	assert.NotSame(t, l.GetLimiter("x"), l.GetLimiter("y"))
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1, 2)
	l.now = func() time.Time { return now }

	l.GetLimiter("idle")
	assert.True(t, l.Allow("busy"))
	assert.True(t, l.Allow("busy"))
	require.Equal(t, 2, l.Len())

	// Not idle long enough yet
	assert.Equal(t, 0, l.Prune(time.Minute))

	// "busy" still has an empty bucket at one token per hour
	now = now.Add(time.Minute)
	assert.Equal(t, 1, l.Prune(time.Minute))
	assert.Equal(t, 1, l.Len())
	assert.False(t, l.Allow("busy"))
}
