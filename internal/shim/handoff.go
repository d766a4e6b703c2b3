package shim

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// logTargetFlag is injected ahead of the forwarded arguments so systemd logs
// to the kernel log from the start. A user-supplied conflicting flag wins by
// coming later on the command line.
const logTargetFlag = "--log-target=kmsg"

// Handoff replaces the current process image with the service manager. On
// success nothing after Exec ever runs.
type Handoff struct {
	// TargetPath is the service manager binary. Empty means
	// DefaultServiceManagerPath.
	TargetPath string

	// Argv0 becomes argv[0] of the replacement process, so it is
	// indistinguishable from a direct invocation. Empty means os.Args[0].
	Argv0 string

	// Execve performs the process replacement. Nil means unix.Exec; tests
	// inject a recorder instead.
	Execve func(path string, argv []string, envv []string) error
}

// Exec replaces the process with the target, passing the original argv[0],
// then the log-target flag, then the forwarded arguments. It returns only if
// the replacement failed (or when an injected Execve chooses to return).
func (h *Handoff) Exec(forwarded []string) error {
	argv := make([]string, 0, len(forwarded)+2)
	argv = append(argv, h.argv0())
	argv = append(argv, logTargetFlag)
	argv = append(argv, forwarded...)

	if err := h.execve()(h.targetPath(), argv, os.Environ()); err != nil {
		return fmt.Errorf("executing %s: %w", h.targetPath(), err)
	}
	return nil
}

func (h *Handoff) targetPath() string {
	if h.TargetPath != "" {
		return h.TargetPath
	}
	return DefaultServiceManagerPath
}

func (h *Handoff) argv0() string {
	if h.Argv0 != "" {
		return h.Argv0
	}
	return os.Args[0]
}

func (h *Handoff) execve() func(path string, argv []string, envv []string) error {
	if h.Execve != nil {
		return h.Execve
	}
	return unix.Exec
}
