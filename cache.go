package goparallel

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultShutdownGracePeriod is how long Close waits for each cached idle
// worker to exit cleanly (via shutdown) before killing it outright. It is
// a variable so programs with unusually slow or fast worker teardown can
// tune it process-wide.
var DefaultShutdownGracePeriod = 5 * time.Second

// workerCache holds idle [WorkerHandle] values available for reuse,
// ordered most-recently-idled-last: a slice used as a stack, popped from
// the end, pushed to the end.
// The "coldest" entries accumulate at the front, which is exactly where a
// dead worker, once noticed, costs nothing to skip past during prune.
type workerCache struct {
	mu   sync.Mutex
	idle []*WorkerHandle
}

// push returns a handle to the idle pool, to be popped again by the next
// call with a free slot. Called only with handles known to still be alive.
func (c *workerCache) push(h *WorkerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle = append(c.idle, h)
}

// pop removes and returns the most recently idled live handle, or nil if
// no live handle remains. Handles discovered dead on the way (timed out or
// crashed since they were pushed) have their slots dropped. LIFO order
// keeps a small number of workers hot under bursty load instead of
// round-robining across every worker ever spawned.
func (c *workerCache) pop() *WorkerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := len(c.idle); n > 0; n = len(c.idle) {
		h := c.idle[n-1]
		c.idle[n-1] = nil
		c.idle = c.idle[:n-1]
		if h.isAlive() {
			return h
		}
		h.closeHostEnds()
	}
	return nil
}

// prune drops dead handles from the cold (front) end of the cache. Workers
// exit on their own after an idle timeout (internal/wire.ErrBarrierTimeout
// observed worker-side), so the cache is never told directly; prune is how
// the host notices. Because workers that go idle earliest also time out
// earliest, dead handles accumulate at the front, making this O(number of
// dead handles) rather than a full scan on every call.
func (c *workerCache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := 0
	for i < len(c.idle) && !c.idle[i].isAlive() {
		c.idle[i].closeHostEnds()
		i++
	}
	if i == 0 {
		return
	}
	c.idle = append(c.idle[:0], c.idle[i:]...)
}

// len reports the number of currently cached (not necessarily alive) idle
// handles, for tests and diagnostics.
func (c *workerCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}

// drain removes and returns every cached handle, alive or not, leaving the
// cache empty. Used by Close.
func (c *workerCache) drain() []*WorkerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.idle
	c.idle = nil
	return out
}

// closeAll shuts down every handle currently in the cache, in parallel,
// waiting up to grace per handle. It aggregates every resulting error
// (a *BrokenWorker per worker killed after grace ran out, or ctx's error
// per worker killed because ctx was done) into a single error, leaving callers with one place to
// observe shutdown problems instead of having to poll each handle.
func (c *workerCache) closeAll(ctx context.Context, grace time.Duration) error {
	handles := c.drain()
	if len(handles) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		broken []error
	)
	wg.Add(len(handles))
	for _, h := range handles {
		h := h
		go func() {
			defer wg.Done()
			if err := h.shutdown(ctx, grace); err != nil {
				mu.Lock()
				broken = append(broken, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(broken) == 0 {
		return nil
	}
	return errors.Join(broken...)
}
