package shim

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// ExitError reports an activation program that ran to completion but exited
// with a nonzero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("activation exited with status %d", e.Code)
}

// ErrSignaled reports an activation program terminated by a signal, so no
// exit code is available.
var ErrSignaled = errors.New("activation terminated by signal")

// Supervisor runs the one-shot system activation program to completion with
// its output on the kernel log, and classifies the outcome.
type Supervisor struct {
	// ActivatePath is the activation program. Empty means
	// DefaultActivatePath.
	ActivatePath string

	// KmsgPath is the log device the child's stdout and stderr are
	// redirected to. Empty means DefaultKmsgPath.
	KmsgPath string

	// Starter launches the child. Nil means os/exec.
	Starter Starter

	// WaitidFn is the fallback wait primitive. Nil means the real waitid
	// syscall.
	WaitidFn func(pid int) error
}

// Run spawns the activation program and blocks until its outcome is known.
// nil means activation succeeded (exit 0, or the child was already reaped,
// see below); every other outcome is fatal to the boot.
//
// Outcome determination has one deliberate wrinkle: if the activation
// program installs its own SIGCHLD handling, the child can be reaped before
// our ordinary wait observes it, and the wait syscall fails with ECHILD even
// though the child exited. So: try the direct wait first; if the wait itself
// fails for any reason, fall back to waitid, and fold waitid's ECHILD into
// success — it means the child is already gone and was handled.
func (s *Supervisor) Run() error {
	kmsgPath := s.kmsgPath()

	stdout, err := os.OpenFile(kmsgPath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", kmsgPath, err)
	}
	defer stdout.Close()

	// The child's stdout and stderr must be independent descriptors: a
	// single shared fd would be closed twice when the child's streams are
	// torn down.
	errFd, err := unix.Dup(int(stdout.Fd()))
	if err != nil {
		return fmt.Errorf("duplicating %s fd: %w", kmsgPath, err)
	}
	stderr := os.NewFile(uintptr(errFd), kmsgPath)
	defer stderr.Close()

	proc, err := s.starter().Start(s.activatePath(), []string{"LANG=C.UTF-8"}, stdout, stderr)
	if err != nil {
		return fmt.Errorf("activating: %w", err)
	}
	slog.Debug("activation started", "path", s.activatePath(), "pid", proc.Pid())

	ws, err := proc.Wait()
	if err != nil {
		slog.Debug("direct wait failed, falling back to waitid", "err", err)
		if err := foldWaitid(s.waitidFn()(proc.Pid())); err != nil {
			return fmt.Errorf("waiting for activation: %w", err)
		}
		return nil
	}
	return classifyExit(ws)
}

// classifyExit turns a wait status into the activation outcome: exit 0 is
// success, a nonzero exit keeps its code, and signal termination has no code
// at all.
func classifyExit(ws unix.WaitStatus) error {
	switch {
	case ws.Exited() && ws.ExitStatus() == 0:
		return nil
	case ws.Exited():
		return &ExitError{Code: ws.ExitStatus()}
	default:
		return ErrSignaled
	}
}

// foldWaitid interprets the fallback wait result. ECHILD means the child
// already exited and was reaped elsewhere, which is the success case this
// fallback exists for; anything else is a real failure.
func foldWaitid(err error) error {
	if err == nil || errors.Is(err, unix.ECHILD) {
		return nil
	}
	return err
}

func (s *Supervisor) activatePath() string {
	if s.ActivatePath != "" {
		return s.ActivatePath
	}
	return DefaultActivatePath
}

func (s *Supervisor) kmsgPath() string {
	if s.KmsgPath != "" {
		return s.KmsgPath
	}
	return DefaultKmsgPath
}

func (s *Supervisor) starter() Starter {
	if s.Starter != nil {
		return s.Starter
	}
	return execStarter{}
}

func (s *Supervisor) waitidFn() func(pid int) error {
	if s.WaitidFn != nil {
		return s.WaitidFn
	}
	return waitid
}
