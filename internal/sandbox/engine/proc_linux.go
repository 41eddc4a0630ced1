//go:build linux

package engine

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the child in its own process group and marks it to die
// with its parent, so a crashed caller never leaves orphaned sandboxed
// processes behind.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// killProcessGroup kills pid and its descendants. ESRCH means the group
// already exited and is not an error.
func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
}

// rusagePeakMB reads the peak resident set size of an exited process from
// its rusage, in MB. Used when no cgroup counter is attached.
func rusagePeakMB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		// Maxrss is KB on Linux.
		return usage.Maxrss / 1024
	}
	return 0
}
