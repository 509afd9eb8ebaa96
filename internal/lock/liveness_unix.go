//go:build !windows

package lock

import "syscall"

// processAlive sends signal 0 to pid, the standard Unix liveness probe: the
// kernel still validates permissions and existence without actually
// delivering a signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}
