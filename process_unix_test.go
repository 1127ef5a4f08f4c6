//go:build unix

package goparallel

import "syscall"

// processAlive reports whether pid still exists, using the conventional
// "signal 0" probe: no signal is actually delivered, but the kernel still
// performs the permission/existence check.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
