package goparallel

import (
	"context"
	"sync"
	"time"
)

// WorkerKind selects how a worker process comes into being. Only
// WorkerKindSpawn is implemented: the Go runtime cannot safely continue
// in the child of a bare fork, so the fork and fork-server variants exist
// only to be rejected with a clear error rather than silently behaving
// like spawn.
type WorkerKind int

const (
	// WorkerKindSpawn starts each worker as a freshly exec'd process
	// (the only supported kind).
	WorkerKindSpawn WorkerKind = iota
	// WorkerKindForkServer is rejected by NewScope: unsupported on this
	// platform.
	WorkerKindForkServer
	// WorkerKindFork is rejected by NewScope: unsupported on this
	// platform.
	WorkerKindFork
)

// RetireFunc decides, after a worker has completed callCount jobs, whether
// that worker should be discarded instead of returned to the cache. It is
// evaluated host-side, once per completed call: the host is the only
// party that knows how many jobs a given worker has been dispatched.
type RetireFunc func(callCount int) bool

// Scope bundles the configuration that governs a family of worker
// processes: how long an idle worker waits before exiting, when to retire
// a worker outright, which codec and kind to use, and the cache of
// currently idle workers available for reuse.
type Scope struct {
	IdleTimeout time.Duration
	Retire      RetireFunc
	Kind        WorkerKind
	Codec       Codec
	Logger      Logger
	Limiter     Limiter

	cache workerCache
}

// DefaultIdleTimeout is 10 minutes: long enough that a bursty workload
// keeps its workers hot, short enough that a forgotten scope does not
// leak processes indefinitely.
const DefaultIdleTimeout = 10 * time.Minute

// NewScope constructs a Scope with the given options applied over
// defaults: WorkerKindSpawn, DefaultIdleTimeout, [DefaultCodec], a retire
// function that never retires, [CurrentDefaultWorkerLimiter], and
// [DefaultLogger].
func NewScope(opts ...ScopeOption) (*Scope, error) {
	s := &Scope{
		IdleTimeout: DefaultIdleTimeout,
		Retire:      func(int) bool { return false },
		Kind:        WorkerKindSpawn,
		Codec:       DefaultCodec,
		Logger:      DefaultLogger(),
		Limiter:     CurrentDefaultWorkerLimiter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.IdleTimeout < 0 {
		return nil, &ValueError{Message: "idle timeout must be >= 0"}
	}
	if s.Kind != WorkerKindSpawn {
		return nil, &ValueError{Message: "only WorkerKindSpawn is supported in this implementation"}
	}
	if s.Retire == nil {
		return nil, &ValueError{Message: "retire must not be nil"}
	}
	if s.Retire(0) {
		return nil, &ValueError{Message: "retire must return false for callCount == 0"}
	}
	if s.Codec == nil {
		s.Codec = DefaultCodec
	}
	if s.Logger == nil {
		s.Logger = DefaultLogger()
	}
	if s.Limiter == nil {
		s.Limiter = CurrentDefaultWorkerLimiter()
	}
	return s, nil
}

// ScopeOption configures a Scope built by NewScope.
type ScopeOption func(*Scope)

// WithIdleTimeout overrides DefaultIdleTimeout. Zero disables the idle
// exit entirely: the worker waits for its next job indefinitely.
func WithIdleTimeout(d time.Duration) ScopeOption {
	return func(s *Scope) { s.IdleTimeout = d }
}

// WithRetire installs a retire predicate, evaluated after every completed
// call with the worker's total call count.
func WithRetire(fn RetireFunc) ScopeOption {
	return func(s *Scope) { s.Retire = fn }
}

// WithWorkerKind selects the process-creation strategy. Anything other
// than WorkerKindSpawn is rejected by NewScope.
func WithWorkerKind(k WorkerKind) ScopeOption {
	return func(s *Scope) { s.Kind = k }
}

// WithCodec overrides DefaultCodec.
func WithCodec(c Codec) ScopeOption {
	return func(s *Scope) { s.Codec = c }
}

// WithLogger installs a Logger; the default is [DefaultLogger].
func WithLogger(l Logger) ScopeOption {
	return func(s *Scope) { s.Logger = l }
}

// WithLimiter overrides the scope's concurrency limiter.
func WithLimiter(l Limiter) ScopeOption {
	return func(s *Scope) { s.Limiter = l }
}

// acquireWorker pops a live idle worker from the cache, or spawns a new
// one if none is available. fromCache reports which of the two happened,
// so the dispatcher knows whether a stale-handle failure is retryable
// (a freshly spawned worker dying before its first job is not "stale", it
// is broken).
func (s *Scope) acquireWorker() (_ *WorkerHandle, fromCache bool, _ error) {
	s.cache.prune()
	if h := s.cache.pop(); h != nil {
		return h, true, nil
	}
	h, err := spawnWorker(s.IdleTimeout, s.Codec, s.Logger)
	if err != nil {
		return nil, false, err
	}
	if s.Logger.IsEnabled(LevelInfo) {
		s.Logger.Log(LogEntry{Level: LevelInfo, Category: "cache", PID: h.PID(), Message: "spawned new worker"})
	}
	return h, false, nil
}

// releaseWorker returns h to the cache unless the scope's retire
// predicate says otherwise, in which case h is shut down instead.
func (s *Scope) releaseWorker(ctx context.Context, h *WorkerHandle) {
	if s.Retire(h.callCountSnapshot()) {
		if s.Logger.IsEnabled(LevelInfo) {
			s.Logger.Log(LogEntry{Level: LevelInfo, Category: "cache", PID: h.PID(), Message: "retiring worker", Fields: map[string]any{"calls": h.callCountSnapshot()}})
		}
		_ = h.shutdown(ctx, DefaultShutdownGracePeriod)
		return
	}
	s.cache.push(h)
}

// Close shuts down every idle worker currently cached by the scope,
// waiting up to DefaultShutdownGracePeriod per worker. It does not affect
// workers currently executing a call; callers are expected to have
// stopped issuing new calls against this scope before calling Close.
func (s *Scope) Close(ctx context.Context) error {
	return s.cache.closeAll(ctx, DefaultShutdownGracePeriod)
}

var (
	defaultScopeOnce sync.Once
	defaultScopeVal  *Scope
)

// defaultScope returns the process-wide Scope used by [RunSync] when the
// caller does not build its own via [NewScope].
func defaultScope() *Scope {
	defaultScopeOnce.Do(func() {
		s, err := NewScope()
		if err != nil {
			// Unreachable: NewScope() with no options never fails.
			panic(err)
		}
		defaultScopeVal = s
	})
	return defaultScopeVal
}
