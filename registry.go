package goparallel

import (
	"context"
	"fmt"
	"sync"
)

// Deferred is a marker value standing in for "an unstarted asynchronous
// computation": the worker must reject a callable that returns one, since
// it only accepts synchronous work. Go has no native awaitable type at the language
// level, so a registered [Func] that wants to signal "this looks like it
// returned a future instead of a value" returns *Deferred; the worker
// rejects it, the caller receives a [*RemoteError] whose Type is
// "TypeError", and the worker remains available for reuse.
type Deferred struct{}

// Func is a registered unit of work a worker can execute. It receives the
// worker-local context (cancelled only by the worker process's own
// lifecycle, never by the host) and the decoded positional arguments, and
// returns a value or an error exactly like any other synchronous Go
// function.
type Func func(ctx context.Context, args []any) (any, error)

// RegisteredFunc is an opaque, round-trippable reference to a [Func]. Since
// Go cannot serialize closures, the wire protocol carries the Name rather
// than the function value; both host and worker processes are the same
// compiled binary, so they share the same registrations.
type RegisteredFunc struct {
	name string
}

// Name returns the registered name backing this reference.
func (r RegisteredFunc) Name() string { return r.name }

var (
	registryMu sync.RWMutex
	registry   = map[string]Func{}
)

// Register associates a name with fn in the process-wide function registry
// and returns a [RegisteredFunc] referencing it. Register is intended to be
// called from package-level var initializers, before [Init] or [RunSync]
// run, so that the registration is visible identically in both the host
// process and any worker processes re-executed from the same binary.
//
// Register panics if name is already registered; this mirrors a duplicate
// symbol definition and is a programming error, not a runtime condition.
func Register(name string, fn Func) RegisteredFunc {
	if fn == nil {
		panic("goparallel: Register: nil Func")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("goparallel: Register: %q already registered", name))
	}
	registry[name] = fn
	return RegisteredFunc{name: name}
}

// lookup resolves a registered name to its Func, used only on the worker
// side after a Job is decoded off the wire.
func lookup(name string) (Func, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}
