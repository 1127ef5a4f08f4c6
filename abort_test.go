package goparallel

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAbortSignal_NilSignalReturnsContextUnchanged(t *testing.T) {
	ctx := context.Background()
	got, cancel := withAbortSignal(ctx, nil)
	defer cancel()
	assert.Equal(t, ctx, got)
}

func TestWithAbortSignal_AbortCancelsDerivedContext(t *testing.T) {
	ctrl := eventloop.NewAbortController()
	ctx, cancel := withAbortSignal(context.Background(), ctrl.Signal())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context must not be done before the signal aborts")
	default:
	}

	ctrl.Abort("stop")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("abort did not cancel the derived context")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWithAbortSignal_AlreadyAbortedSignal(t *testing.T) {
	ctrl := eventloop.NewAbortController()
	ctrl.Abort(nil)

	ctx, cancel := withAbortSignal(context.Background(), ctrl.Signal())
	defer cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

// An AbortController abort behaves exactly like a context cancellation for
// a cancellable call: the worker is killed and the caller observes the
// cancellation.
func TestRunSync_AbortSignalKillsCancellableCall(t *testing.T) {
	scope := newTestScope(t, WithLimiter(NewLimiter(1)))
	ctrl := eventloop.NewAbortController()

	go func() {
		time.Sleep(50 * time.Millisecond)
		ctrl.Abort("deadline")
	}()

	_, err := RunSync(context.Background(), rfBusyLoop, nil,
		WithScope(scope), Cancellable(true), WithAbortSignal(ctrl.Signal()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
