//go:build unix

package espeak

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configure starts the synthesizer in its own process group so pause,
// resume and cancel reach any helper it spawns.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}

func suspend(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGSTOP)
}

func resume(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGCONT)
}
