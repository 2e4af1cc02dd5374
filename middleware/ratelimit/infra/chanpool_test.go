package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanPool_AcquireUpToCapacity(t *testing.T) {
	p := NewChanPool(2)

	r1, ok := p.Acquire(context.Background())
	require.True(t, ok)
	r2, ok := p.Acquire(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, p.InUse())
	assert.Equal(t, 2, p.Cap())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok = p.Acquire(ctx)
	assert.False(t, ok, "third acquire should wait and give up with the context")

	r1()
	r2()
	assert.Equal(t, 0, p.InUse())
}

func TestChanPool_ReleaseIsIdempotent(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	require.True(t, ok)
	release()
	release()
	assert.Equal(t, 0, p.InUse())
}

func TestChanPool_AcquireSucceedsWithCanceledContextWhenFree(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release, ok := p.Acquire(ctx)
	require.True(t, ok)
	release()
}
