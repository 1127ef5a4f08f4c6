package wire

import (
	"errors"
	"io"
	"os"
)

// ErrBarrierTimeout indicates the worker's wait for a wake signal exceeded
// its idle timeout (a clean idle exit, not a crash).
var ErrBarrierTimeout = errors.New("wire: barrier wait timed out")

// wakeToken is the single byte exchanged over the dedicated wake pipe. Its
// value carries no meaning; only its arrival (or the read failing) matters.
const wakeToken = 0x01

// Wake performs the host side of the two-party rendezvous: it writes one
// byte to w, releasing a worker blocked in WaitForWake. There is
// deliberately no payload; job data travels on the separate framed request
// pipe (see frame.go) once the worker is known to be awake.
func Wake(w io.Writer) error {
	_, err := w.Write([]byte{wakeToken})
	return err
}

// WaitForWake performs the worker side of the rendezvous: a blocking read
// of exactly one byte from r, which should have had a read deadline of the
// configured idle timeout set by the caller (via (*os.File).SetReadDeadline)
// before this call, standing in for a two-party barrier's timed wait.
//
//   - A deadline-exceeded error is reported as ErrBarrierTimeout: the
//     worker should exit cleanly.
//   - EOF (the host closed its end, e.g. during shutdown or a kill) is
//     reported as ErrFramingEOF: the worker should exit immediately.
func WaitForWake(r io.Reader) error {
	buf := make([]byte, 1)
	_, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrBarrierTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrFramingEOF
	}
	return err
}
