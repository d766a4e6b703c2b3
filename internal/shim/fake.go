package shim

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MountCall records one Mount invocation on a FakeMounter.
type MountCall struct {
	Source string
	Target string
	FSType string
	Flags  uintptr
	Data   string
}

// FakeMounter is a test Mounter that records calls instead of touching the
// mount table.
type FakeMounter struct {
	Calls []MountCall

	// Err, when set, is returned by Mount. If FailAt is nonzero the error
	// fires only on that call (1-based), so tests can fail a specific step
	// of a multi-mount sequence.
	Err    error
	FailAt int
}

func (m *FakeMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	m.Calls = append(m.Calls, MountCall{
		Source: source,
		Target: target,
		FSType: fstype,
		Flags:  flags,
		Data:   data,
	})
	if m.Err != nil && (m.FailAt == 0 || m.FailAt == len(m.Calls)) {
		return m.Err
	}
	return nil
}

// FakeOutcome describes what a FakeStarter-launched process does.
type FakeOutcome struct {
	// StartErr makes Start itself fail.
	StartErr error

	// WaitStatus is returned by Wait when WaitErr is nil. Encode exits as
	// code<<8 and signal deaths as the signal number, matching the kernel.
	WaitStatus unix.WaitStatus

	// WaitErr makes the direct wait fail at the syscall level, driving the
	// supervisor onto its waitid fallback.
	WaitErr error

	// Pid reported by the process. Zero means an arbitrary fixed pid.
	Pid int
}

// StartCall records one Start invocation on a FakeStarter.
type StartCall struct {
	Path     string
	ExtraEnv []string
}

// FakeStarter is a test Starter that runs registered outcomes instead of
// real processes.
type FakeStarter struct {
	Starts   []StartCall
	outcomes map[string]FakeOutcome
}

func NewFakeStarter() *FakeStarter {
	return &FakeStarter{outcomes: make(map[string]FakeOutcome)}
}

// Register associates an outcome with a program path.
func (s *FakeStarter) Register(path string, outcome FakeOutcome) {
	s.outcomes[path] = outcome
}

func (s *FakeStarter) Start(path string, extraEnv []string, stdout, stderr *os.File) (Process, error) {
	s.Starts = append(s.Starts, StartCall{Path: path, ExtraEnv: extraEnv})

	outcome, ok := s.outcomes[path]
	if !ok {
		return nil, fmt.Errorf("executable %q not found", path)
	}
	if outcome.StartErr != nil {
		return nil, outcome.StartErr
	}
	return &fakeProcess{outcome: outcome}, nil
}

type fakeProcess struct {
	outcome FakeOutcome
}

func (p *fakeProcess) Pid() int {
	if p.outcome.Pid != 0 {
		return p.outcome.Pid
	}
	return 4242
}

func (p *fakeProcess) Wait() (unix.WaitStatus, error) {
	if p.outcome.WaitErr != nil {
		return 0, p.outcome.WaitErr
	}
	return p.outcome.WaitStatus, nil
}

// FakeExec records the argv an exec would have replaced the process with,
// instead of actually replacing it.
type FakeExec struct {
	Called bool
	Path   string
	Argv   []string
	Env    []string

	// Err simulates a failed execve, e.g. a missing target.
	Err error
}

func (f *FakeExec) Exec(path string, argv []string, envv []string) error {
	f.Called = true
	f.Path = path
	f.Argv = argv
	f.Env = envv
	return f.Err
}
