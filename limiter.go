package goparallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of simultaneous worker processes. Any type
// satisfying this interface may be installed on a [Scope] via
// [WithLimiter]; the default is backed by
// [golang.org/x/sync/semaphore.Weighted]. [RunSync] has no per-call limiter
// option: every call uses the limiter of the scope it runs in.
type Limiter interface {
	// Acquire blocks until a token is available or ctx is done.
	Acquire(ctx context.Context) error
	// Release returns a token acquired by Acquire.
	Release()
}

// semaphoreLimiter adapts *semaphore.Weighted (weight 1 per call) to Limiter.
type semaphoreLimiter struct {
	sem *semaphore.Weighted
}

// NewLimiter returns a Limiter with the given capacity; a capacity below 1
// is raised to 1.
func NewLimiter(capacity int64) Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &semaphoreLimiter{sem: semaphore.NewWeighted(capacity)}
}

func (l *semaphoreLimiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *semaphoreLimiter) Release() {
	l.sem.Release(1)
}

var (
	defaultLimiterOnce sync.Once
	defaultLimiterVal  Limiter
)

// CurrentDefaultWorkerLimiter returns the process-wide default [Limiter]
// that [NewScope] installs when no [WithLimiter] option is given. Its capacity is
// initialized to [runtime.NumCPU] (falling back to 1 if that ever reports a
// non-positive value). Callers that want to tune the default's capacity
// should replace it via [SetDefaultWorkerLimiter] rather than relying on a
// particular NumCPU value.
func CurrentDefaultWorkerLimiter() Limiter {
	defaultLimiterOnce.Do(func() {
		n := runtime.NumCPU()
		if n < 1 {
			n = 1
		}
		defaultLimiterVal = NewLimiter(int64(n))
	})
	return defaultLimiterVal
}

// SetDefaultWorkerLimiter replaces the process-wide default limiter
// returned by [CurrentDefaultWorkerLimiter]. Intended for programs that
// want a different default capacity than [runtime.NumCPU] without passing a
// [WithLimiter] option to every [NewScope] call. Scopes already constructed
// (including the default scope, once first used) keep the limiter they
// were built with.
func SetDefaultWorkerLimiter(l Limiter) {
	defaultLimiterOnce.Do(func() {}) // ensure Do has fired, future Do calls are no-ops
	defaultLimiterVal = l
}
