//go:build !windows

package parallelrun

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup launches cmd in a new process group so the whole
// subtree can be killed atomically.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGTERM to the process group led by pid.
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}
