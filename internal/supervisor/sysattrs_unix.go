//go:build !windows

package supervisor

import (
	"syscall"
)

// sysProcAttr places each spawned app in its own process group so that
// group signaling reaches children the app forks itself.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup asks the whole process group to exit.
func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup force-terminates the whole process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// killPID force-terminates one process, used for escalation targets that
// are not necessarily in a group we created. The target's group is killed
// too when it leads one.
func killPID(pid int) error {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	err := syscall.Kill(pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
