//go:build windows

package parallelrun

import (
	"os"
	"os/exec"
	"strconv"
	"time"
)

// configureProcessGroup is a no-op on Windows: there is no POSIX process
// group API, so tree-kill instead enumerates children of the launched PID.
func configureProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup enumerates the children of pid via taskkill's /T flag,
// which walks the process tree itself, falling back to a direct kill after
// a 5s join timeout per spec §4.H.
func killProcessGroup(pid int) {
	done := make(chan struct{})
	go func() {
		_ = exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F").Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if p, err := os.FindProcess(pid); err == nil {
			_ = p.Kill()
		}
	}
}
