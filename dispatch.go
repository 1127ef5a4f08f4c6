package goparallel

import (
	"context"
	"errors"

	"github.com/joeycumines/go-eventloop"
)

// RunOption configures a single [RunSync] call.
type RunOption func(*runConfig)

type runConfig struct {
	scope       *Scope
	cancellable bool
	abortSignal *eventloop.AbortSignal
}

// WithAbortSignal additionally cancels this call when sig aborts, on top
// of whatever ctx.Done() does. Use this to tie a RunSync call to the same
// AbortController governing other cooperative asynchronous work on the
// host's event loop.
func WithAbortSignal(sig *eventloop.AbortSignal) RunOption {
	return func(c *runConfig) { c.abortSignal = sig }
}

// WithScope directs this call to use a specific [Scope] (and therefore its
// own worker cache, idle timeout, retire policy, codec, and limiter)
// instead of the process-wide default scope.
func WithScope(s *Scope) RunOption {
	return func(c *runConfig) { c.scope = s }
}

// Cancellable marks the call as abandonable: if ctx is cancelled before the
// worker replies, RunSync kills the worker immediately and returns ctx's
// error without waiting for the job to finish. The default is false: a
// call that cannot be cancelled is "shielded", meaning
// RunSync always waits for the worker's reply, then surfaces ctx's error
// only if it was cancelled in the meantime, without losing or discarding
// the worker's result in the process.
func Cancellable(v bool) RunOption {
	return func(c *runConfig) { c.cancellable = v }
}

// RunSync runs rf(args) in a worker process and returns its result,
// blocking the caller until either the worker replies or (if Cancellable
// was set) ctx is cancelled.
//
// On success it returns the value fn returned. On failure it returns one
// of: *RemoteError (fn returned an error, panicked, or returned a
// *Deferred), *BrokenWorker (the worker process died unexpectedly), or
// ctx.Err() (the call was cancelled).
func RunSync(ctx context.Context, rf RegisteredFunc, args []any, opts ...RunOption) (any, error) {
	cfg := runConfig{scope: defaultScope(), cancellable: false}
	for _, opt := range opts {
		opt(&cfg)
	}
	scope := cfg.scope

	ctx, cancel := withAbortSignal(ctx, cfg.abortSignal)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := scope.Limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer scope.Limiter.Release()

	job := Job{FuncName: rf.Name(), Args: args}

	for {
		// Re-check cancellation at the top of every attempt, so the
		// stale-retry loop cannot become uninterruptible.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		handle, fromCache, err := scope.acquireWorker()
		if err != nil {
			return nil, &BrokenWorker{Message: "failed to start worker", Cause: err}
		}

		result, err := handle.runSync(ctx, job, cfg.cancellable)
		if err != nil {
			if errors.Is(err, errWorkerCancelled) {
				handle.closeHostEnds()
				return nil, ctx.Err()
			}
			if errors.Is(err, errStaleWorker) {
				handle.closeHostEnds()
				if fromCache {
					// The worker idled out between pop and job delivery;
					// the job never started, so another worker can take it.
					if scope.Logger.IsEnabled(LevelWarn) {
						scope.Logger.Log(LogEntry{Level: LevelWarn, Category: "dispatch", PID: handle.PID(), Message: "discarded stale cached worker, retrying"})
					}
					continue
				}
				// A freshly spawned worker that exits before its first job
				// is broken, not stale.
				return nil, &BrokenWorker{Message: "worker exited before accepting a job", Cause: err}
			}
			var broken *BrokenWorker
			if errors.As(err, &broken) {
				handle.closeHostEnds()
				if scope.Logger.IsEnabled(LevelError) {
					scope.Logger.Log(LogEntry{Level: LevelError, Category: "dispatch", PID: handle.PID(), Message: "worker broken", Err: broken})
				}
				return nil, broken
			}
			// Any other transport failure leaves the worker in an unknown
			// state; treat it the same way as a broken worker rather than
			// risk reusing a corrupted pipe.
			handle.kill()
			handle.closeHostEnds()
			return nil, &BrokenWorker{Message: "worker communication failed", Cause: err}
		}

		// The caller's cancellation must not cut a retiring worker's
		// shutdown grace short; the call itself already completed.
		scope.releaseWorker(context.WithoutCancel(ctx), handle)

		value, err := result.Unwrap()
		if err != nil {
			return nil, err
		}
		if !cfg.cancellable {
			if cerr := ctx.Err(); cerr != nil {
				return value, cerr
			}
		}
		return value, nil
	}
}
