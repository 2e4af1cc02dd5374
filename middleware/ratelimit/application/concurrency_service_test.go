package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

func (p *blockingPool) InUse() int { return 1 }
func (p *blockingPool) Cap() int   { return 1 }

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(ctx context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}

func (p *immediatePool) InUse() int { return 0 }
func (p *immediatePool) Cap() int   { return 1 }

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	svc := ConcurrencyService{}
	release, ok := svc.Acquire(context.Background())
	require.True(t, ok)
	release()
}

func TestConcurrencyService_Acquire_UsesTimeout(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	release, ok := svc.Acquire(context.Background())
	assert.False(t, ok, "expected timeout and ok=false")
	assert.NotPanics(t, release, "release must be safe to call after a failed acquire")
}

func TestConcurrencyService_Acquire_NoTimeoutUsesRequestContext(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok := svc.Acquire(ctx)
	assert.False(t, ok)
}

func TestConcurrencyService_Acquire_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: 0}

	_, ok := svc.Acquire(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, pool.acquired, "expected pool Acquire to be called once")
}
