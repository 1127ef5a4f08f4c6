package goparallel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"goparallel/internal/wire"
)

// Init must be called at the top of main, before any other use of this
// package, typically as:
//
//	func main() {
//	    if goparallel.Init() {
//	        return
//	    }
//	    ... host logic, including RunSync calls ...
//	}
//
// If the current process was re-exec'd as a worker (spawnWorker sets
// workerEnvFlag in the child's environment), Init runs the worker loop
// against the inherited pipe file descriptors and never returns: it calls
// os.Exit once the worker decides to exit. Otherwise Init returns false
// immediately, and the calling program proceeds as the host.
//
// Init returning true would be a contradiction (the worker path never
// returns), but the bool result lets callers write `if goparallel.Init()
// { return }` without knowing that detail.
func Init() bool {
	if os.Getenv(workerEnvFlag) == "" {
		return false
	}
	ignoreInterruptSignal()
	os.Exit(runWorkerLoop())
	return true
}

// runWorkerLoop is the worker process's entire program: wait to be woken,
// read one job, run it, send one result, repeat, until the idle timeout
// elapses or the host closes its pipes.
func runWorkerLoop() int {
	wakeR := os.NewFile(3, "wake")
	reqR := os.NewFile(4, "request")
	respW := os.NewFile(5, "response")
	if wakeR == nil || reqR == nil || respW == nil {
		fmt.Fprintln(os.Stderr, "goparallel: worker: missing inherited pipe file descriptors")
		return 1
	}

	idleTimeout := DefaultIdleTimeout
	if raw := os.Getenv(workerIdleTimeoutEnv); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			idleTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	codec := DefaultCodec

	for {
		if idleTimeout > 0 {
			if err := wakeR.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return 1
			}
		}
		if err := wire.WaitForWake(wakeR); err != nil {
			// ErrBarrierTimeout: clean idle exit. ErrFramingEOF or
			// anything else: the host is gone or broken; exit either way.
			return 0
		}

		payload, err := wire.ReadFrame(reqR)
		if err != nil {
			return 0
		}

		job, err := codec.DecodeJob(payload)
		if err != nil {
			sendResult(respW, codec, Result{Err: &RemoteError{Type: "DecodeError", Message: err.Error()}})
			continue
		}

		result := runJob(job)
		if err := sendResult(respW, codec, result); err != nil {
			return 0
		}
	}
}

// runJob looks up and executes a single registered function, converting a
// panic or a rejected *Deferred return into the same Result shape as a
// normal error return, so the host never has to special-case them.
func runJob(job Job) (result Result) {
	fn, ok := lookup(job.FuncName)
	if !ok {
		return Result{Err: &RemoteError{Type: "ValueError", Message: fmt.Sprintf("no function registered as %q", job.FuncName)}}
	}

	defer func() {
		if r := recover(); r != nil {
			result = Result{Err: &RemoteError{Type: "PanicError", Message: fmt.Sprint(r)}}
		}
	}()

	value, err := fn(context.Background(), job.Args)
	if err != nil {
		return Result{Err: &RemoteError{Type: remoteErrorType(err), Message: err.Error()}}
	}
	if _, isDeferred := value.(*Deferred); isDeferred {
		return Result{Err: &RemoteError{Type: "TypeError", Message: "registered function returned *Deferred: synchronous functions only"}}
	}
	return Result{Value: value}
}

// remoteErrorType extracts a stable type tag from err for the wire
// representation. Our own typed errors keep their bare Go type name;
// anything else is reported by its %T type name.
func remoteErrorType(err error) string {
	switch err.(type) {
	case *ValueError:
		return "ValueError"
	case *TypeError:
		return "TypeError"
	case *BrokenWorker:
		return "BrokenWorker"
	case *RemoteError:
		return "RemoteError"
	default:
		return fmt.Sprintf("%T", err)
	}
}

func sendResult(w *os.File, codec Codec, result Result) error {
	payload, err := codec.EncodeResult(result)
	if err != nil {
		return err
	}
	return wire.WriteFrame(w, payload)
}
