package goparallel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter_EnforcesCapacity(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	// Third acquire must block until a token is released.
	acquired := make(chan struct{})
	go func() {
		require.NoError(t, l.Acquire(ctx))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third Acquire should have blocked at capacity 2")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("third Acquire never unblocked after Release")
	}
	l.Release()
	l.Release()
}

func TestNewLimiter_ClampsNonPositiveCapacity(t *testing.T) {
	l := NewLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Acquire(ctx))
	l.Release()
}

func TestNewLimiter_AcquireRespectsContextCancellation(t *testing.T) {
	l := NewLimiter(1)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	defer l.Release()

	cctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(cctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCurrentDefaultWorkerLimiter_Idempotent(t *testing.T) {
	a := CurrentDefaultWorkerLimiter()
	b := CurrentDefaultWorkerLimiter()
	require.NotNil(t, a)
	assert.Same(t, a, b)
}

func TestSetDefaultWorkerLimiter_Replaces(t *testing.T) {
	replacement := NewLimiter(1)
	SetDefaultWorkerLimiter(replacement)
	assert.Same(t, replacement, CurrentDefaultWorkerLimiter())
}
