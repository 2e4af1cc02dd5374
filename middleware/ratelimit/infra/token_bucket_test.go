package infra

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"notes-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_AllowsBurstThenDenies(t *testing.T) {
	tb := NewTokenBucket(domain.PolicyConfig{Limit: 3, Window: time.Second})
	now := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		dec, err := tb.Decide("k", now)
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, dec.Limit)
	}

	dec, err := tb.Decide("k", now)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, dec.Remaining)
	assert.Greater(t, dec.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, dec.RetryAfter, time.Second)
}

func TestTokenBucket_RefillsOverWindow(t *testing.T) {
	tb := NewTokenBucket(domain.PolicyConfig{Limit: 2, Window: time.Second})
	now := time.Unix(1000, 0)

	for i := 0; i < 2; i++ {
		dec, _ := tb.Decide("k", now)
		require.True(t, dec.Allowed)
	}
	dec, _ := tb.Decide("k", now)
	require.False(t, dec.Allowed)

	dec, _ = tb.Decide("k", now.Add(time.Second))
	assert.True(t, dec.Allowed)
}

func TestTokenBucket_KeysAreIsolated(t *testing.T) {
	tb := NewTokenBucket(domain.PolicyConfig{Limit: 1, Window: time.Minute})
	now := time.Unix(1000, 0)

	a, _ := tb.Decide("a", now)
	b, _ := tb.Decide("b", now)
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
}

func TestTokenBucket_ZeroLimitDeniesEverything(t *testing.T) {
	tb := NewTokenBucket(domain.PolicyConfig{Limit: 0, Window: time.Second})

	dec, err := tb.Decide("k", time.Unix(1000, 0))
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, tb.Len())
}

func TestTokenBucket_EmptyKeyIsAnError(t *testing.T) {
	tb := NewTokenBucket(domain.PolicyConfig{Limit: 1, Window: time.Second})

	_, err := tb.Decide("", time.Unix(1000, 0))
	assert.ErrorIs(t, err, domain.ErrEmptyKey)
}

func TestTokenBucket_ConcurrentSameInstantAdmitsExactlyLimit(t *testing.T) {
	const limit, extra = 10, 7
	tb := NewTokenBucket(domain.PolicyConfig{Limit: limit, Window: time.Minute})
	now := time.Unix(1000, 0)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < limit+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if dec, _ := tb.Decide("k", now); dec.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, limit, allowed.Load())
}

func TestTokenBucket_SweepRemovesIdleBuckets(t *testing.T) {
	tb := NewTokenBucket(domain.PolicyConfig{Limit: 1, Window: time.Second})
	now := time.Unix(1000, 0)

	_, _ = tb.Decide("idle", now)
	_, _ = tb.Decide("busy", now.Add(3*time.Second))
	require.Equal(t, 2, tb.Len())

	removed := tb.Sweep(2*time.Second, now.Add(3*time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tb.Len())

	// recriado cheio
	dec, _ := tb.Decide("idle", now.Add(3*time.Second))
	assert.True(t, dec.Allowed)
}

func TestTokenBucket_ExposesRate(t *testing.T) {
	tb := NewTokenBucket(domain.PolicyConfig{Limit: 30, Window: time.Minute})
	assert.InDelta(t, 0.5, tb.RPS(), 1e-9)
	assert.Equal(t, 30, tb.Burst())
}
