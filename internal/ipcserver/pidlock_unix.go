//go:build !windows

package ipcserver

import "syscall"

// isAlive reports whether pid names a live process, using signal 0 which
// tests existence without delivering anything.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
