package goparallel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"goparallel/internal/wire"
)

// workerEnvFlag is set in a worker process's environment so [Init] can tell
// it apart from a normal host invocation of the same binary.
const workerEnvFlag = "GOPARALLEL_WORKER"

// workerIdleTimeoutEnv carries the configured idle timeout across the
// exec boundary, since a Duration cannot be captured in a closure the way
// the host process captures it for itself.
const workerIdleTimeoutEnv = "GOPARALLEL_IDLE_TIMEOUT_MS"

// WorkerHandle is a live worker process together with its three pipes: a
// wake (rendezvous) pipe, a request (job) pipe, and a response (result)
// pipe. The worker is the same compiled binary, re-executed with the pipe
// ends inherited via exec.Cmd's ExtraFiles.
type WorkerHandle struct {
	cmd   *exec.Cmd
	wakeW *os.File // host -> worker rendezvous signal
	reqW  *os.File // host -> worker job frames
	respR *os.File // worker -> host result frames

	codec  Codec
	logger Logger

	mu        sync.Mutex
	callCount int

	waitDone chan struct{}
	waitErr  error
}

// spawnWorker starts a new worker process (re-executing the current
// binary with workerEnvFlag set) and wires up its three pipes. The caller
// owns the returned handle and must eventually shut it down, kill it, or
// hand it to a cache that will.
func spawnWorker(idleTimeout time.Duration, codec Codec, logger Logger) (_ *WorkerHandle, err error) {
	wakeR, wakeW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("goparallel: create wake pipe: %w", err)
	}
	defer wakeR.Close()

	reqR, reqW, err := os.Pipe()
	if err != nil {
		wakeW.Close()
		return nil, fmt.Errorf("goparallel: create request pipe: %w", err)
	}
	defer reqR.Close()

	respR, respW, err := os.Pipe()
	if err != nil {
		wakeW.Close()
		reqW.Close()
		return nil, fmt.Errorf("goparallel: create response pipe: %w", err)
	}
	defer respW.Close()

	exe, err := os.Executable()
	if err != nil {
		wakeW.Close()
		reqW.Close()
		respR.Close()
		return nil, fmt.Errorf("goparallel: resolve re-exec target: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		workerEnvFlag+"=1",
		workerIdleTimeoutEnv+"="+strconv.FormatInt(idleTimeout.Milliseconds(), 10),
	)
	// fd 3, 4, 5: wake-read, request-read, response-write.
	cmd.ExtraFiles = []*os.File{wakeR, reqR, respW}

	if err := cmd.Start(); err != nil {
		wakeW.Close()
		reqW.Close()
		respR.Close()
		return nil, fmt.Errorf("goparallel: start worker: %w", err)
	}

	h := &WorkerHandle{
		cmd:      cmd,
		wakeW:    wakeW,
		reqW:     reqW,
		respR:    respR,
		codec:    codec,
		logger:   logger,
		waitDone: make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

// reap runs cmd.Wait in the background so isAlive never blocks, and so the
// process is never left as a zombie.
func (h *WorkerHandle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()
	close(h.waitDone)
}

// PID returns the worker process's OS process ID.
func (h *WorkerHandle) PID() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// isAlive reports whether the worker process has not yet exited.
func (h *WorkerHandle) isAlive() bool {
	select {
	case <-h.waitDone:
		return false
	default:
		return true
	}
}

// callCountSnapshot returns the number of jobs this handle has run so far,
// for retire predicate evaluation by the caller. The check itself lives in
// the scope, not here: this handle has no notion of retirement, only of
// how many times it has been used.
func (h *WorkerHandle) callCountSnapshot() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callCount
}

// errWorkerCancelled is returned internally when a cancellable call's
// context is cancelled before the worker replies; dispatch.go translates
// it into the caller's ctx.Err().
var errWorkerCancelled = errors.New("goparallel: worker call cancelled")

// errStaleWorker is returned internally when the worker turns out to have
// already exited (cleanly, on its own idle timeout) before it ever read
// the job off the request pipe. The job was provably never started, so the
// dispatcher may hand it to another worker.
var errStaleWorker = errors.New("goparallel: worker exited before accepting the job")

// runSync sends job to the worker, waits for its result, and returns it.
//
// If cancellable is true and ctx is cancelled before the worker replies,
// runSync kills the worker immediately and returns errWorkerCancelled: the
// worker is presumed broken and must not be reused.
//
// If cancellable is false, ctx cancellation is ignored for the purpose of
// waiting on this call (the call is "shielded"): runSync still waits for
// the worker's reply so the result is not lost, and the caller is
// responsible for surfacing the cancellation afterwards.
func (h *WorkerHandle) runSync(ctx context.Context, job Job, cancellable bool) (Result, error) {
	h.mu.Lock()
	h.callCount++
	h.mu.Unlock()

	if err := wire.Wake(h.wakeW); err != nil {
		// A broken wake pipe means there is no reader left: the worker
		// exited (idle timeout) after this handle was cached, and the job
		// never reached it.
		if errors.Is(err, syscall.EPIPE) || !h.isAlive() {
			return Result{}, errStaleWorker
		}
		return Result{}, fmt.Errorf("goparallel: wake worker: %w", err)
	}

	payload, err := h.codec.EncodeJob(job)
	if err != nil {
		return Result{}, fmt.Errorf("goparallel: encode job: %w", err)
	}
	if err := wire.WriteFrame(h.reqW, payload); err != nil {
		if errors.Is(err, syscall.EPIPE) || !h.isAlive() {
			return Result{}, errStaleWorker
		}
		return Result{}, fmt.Errorf("goparallel: send job: %w", err)
	}

	type readOutcome struct {
		frame []byte
		err   error
	}
	respCh := make(chan readOutcome, 1)
	go func() {
		frame, err := wire.ReadFrame(h.respR)
		respCh <- readOutcome{frame: frame, err: err}
	}()

	var cancelCh <-chan struct{}
	if cancellable {
		cancelCh = ctx.Done()
	}

	decode := func(out readOutcome) (Result, error) {
		if out.err != nil {
			return Result{}, fmt.Errorf("goparallel: receive result: %w", out.err)
		}
		res, err := h.codec.DecodeResult(out.frame)
		if err != nil {
			return Result{}, fmt.Errorf("goparallel: decode result: %w", err)
		}
		return res, nil
	}

	select {
	case out := <-respCh:
		return decode(out)

	case <-cancelCh:
		h.kill()
		return Result{}, errWorkerCancelled

	case <-h.waitDone:
		// The response may have raced the exit notification; prefer it.
		select {
		case out := <-respCh:
			return decode(out)
		default:
		}
		h.mu.Lock()
		werr := h.waitErr
		h.mu.Unlock()
		if werr == nil {
			// Exit status 0 means the worker left its wait loop cleanly
			// (idle timeout) without ever reading the job.
			return Result{}, errStaleWorker
		}
		return Result{}, &BrokenWorker{Message: "worker process exited unexpectedly", Cause: werr}
	}
}

// kill terminates the worker process immediately.
func (h *WorkerHandle) kill() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// shutdown asks the worker to exit cleanly by closing the wake pipe's
// write end (the worker's blocking read in WaitForWake observes an EOF and
// exits, see internal/wire/barrier.go), then waits up to grace for it to do
// so before killing it. It returns a *BrokenWorker if the grace period ran
// out and the process had to be killed; if ctx is done first, it kills the
// process and returns ctx's error.
func (h *WorkerHandle) shutdown(ctx context.Context, grace time.Duration) error {
	_ = h.wakeW.Close()
	_ = h.reqW.Close()
	defer h.respR.Close()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.waitDone:
		return nil
	case <-timer.C:
		h.kill()
		<-h.waitDone
		if h.logger != nil && h.logger.IsEnabled(LevelError) {
			h.logger.Log(LogEntry{Level: LevelError, Category: "handle", PID: h.PID(), Message: "worker did not exit within shutdown grace period, killed"})
		}
		return &BrokenWorker{Message: fmt.Sprintf("worker pid %d did not exit within shutdown grace period", h.PID())}
	case <-ctx.Done():
		h.kill()
		<-h.waitDone
		return ctx.Err()
	}
}

// closeHostEnds closes the host's copies of the three pipe endpoints
// without attempting a graceful handshake; used after kill or on an error
// path where the worker is already known dead. Safe to call more than
// once, and on handles that never got as far as opening pipes.
func (h *WorkerHandle) closeHostEnds() {
	if h.wakeW != nil {
		_ = h.wakeW.Close()
	}
	if h.reqW != nil {
		_ = h.reqW.Close()
	}
	if h.respR != nil {
		_ = h.respR.Close()
	}
}
