package goparallel

import (
	"os/signal"
	"syscall"
)

// ignoreInterruptSignal makes a worker process immune to SIGINT, so that a
// Ctrl+C delivered to the whole process group (which reaches host and
// workers alike) cannot tear down a worker mid-frame and corrupt the
// framing protocol. The host is responsible for an orderly Close/shutdown
// instead.
func ignoreInterruptSignal() {
	signal.Ignore(syscall.SIGINT)
}
