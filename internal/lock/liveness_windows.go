//go:build windows

package lock

import "syscall"

// processAlive opens the process by pid; on Windows a missing process fails
// to open, while an existing one (including one lacking permissions) opens
// or returns an access-denied error rather than "not found".
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	const processQueryLimitedInformation = 0x1000
	handle, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	syscall.CloseHandle(handle)
	return true
}
