// Package shim implements the boot pipeline that repairs the WSL guest
// environment and hands control to the real service manager: fix a symlinked
// /dev/shm, make / shared, bind-mount the Nix store read-only, run the system
// activation script, then exec systemd in place.
package shim

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Mounter performs mount syscalls. The default implementation calls
// unix.Mount; tests substitute a recording fake so they never touch the real
// mount table.
type Mounter interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
}

type unixMounter struct{}

func (unixMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

// Process is a started activation process.
type Process interface {
	Pid() int
	// Wait blocks until the process exits. A nil error means the wait
	// itself succeeded and the returned status is valid; a non-nil error
	// means the wait syscall failed and the status is meaningless.
	Wait() (unix.WaitStatus, error)
}

// Starter launches the activation program with the given extra environment
// and output streams.
type Starter interface {
	Start(path string, extraEnv []string, stdout, stderr *os.File) (Process, error)
}

// execStarter is the default Starter, using os/exec.
type execStarter struct{}

func (execStarter) Start(path string, extraEnv []string, stdout, stderr *os.File) (Process, error) {
	cmd := exec.Command(path)
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (unix.WaitStatus, error) {
	err := p.cmd.Wait()
	if err == nil {
		if ws, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
			return unix.WaitStatus(ws), nil
		}
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return unix.WaitStatus(ws), nil
		}
	}
	// The wait syscall itself failed, e.g. ECHILD when the child was
	// already reaped behind our back.
	return 0, err
}

// waitid reaps pid via the waitid syscall. Split out so the supervisor's
// fallback path can be exercised with injected errors.
func waitid(pid int) error {
	var info unix.Siginfo
	return unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED, nil)
}
