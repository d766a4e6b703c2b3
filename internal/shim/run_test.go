package shim

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/sys/unix"
)

// pipeline is a full fake boot environment for end-to-end runs.
type pipeline struct {
	opts    Options
	mounter *FakeMounter
	starter *FakeStarter
	exec    *FakeExec

	shm     string
	backing string
}

// newPipeline builds a healthy environment: /dev/shm already a directory,
// activation registered to exit 0, handoff recording instead of replacing.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	dir := t.TempDir()
	shm := filepath.Join(dir, "dev", "shm")
	backing := filepath.Join(dir, "run", "shm")
	kmsgPath := filepath.Join(dir, "dev", "kmsg")
	activate := filepath.Join(dir, "activate")
	systemd := filepath.Join(dir, "systemd")

	for _, d := range []string{shm, backing} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(kmsgPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	p := &pipeline{
		mounter: &FakeMounter{},
		starter: NewFakeStarter(),
		exec:    &FakeExec{},
		shm:     shm,
		backing: backing,
	}
	p.starter.Register(activate, FakeOutcome{WaitStatus: 0})
	p.opts = Options{
		ShmPath:            shm,
		ShmBackingPath:     backing,
		RootPath:           "/",
		StorePath:          filepath.Join(dir, "store"),
		KmsgPath:           kmsgPath,
		ActivatePath:       activate,
		ServiceManagerPath: systemd,
		Args:               []string{"/sbin/wslinit", "--unit=default.target"},
		Mounter:            p.mounter,
		Starter:            p.starter,
		WaitidFn:           func(int) error { return nil },
		Execve:             p.exec.Exec,
	}
	return p
}

func (p *pipeline) moveMounts() int {
	var n int
	for _, c := range p.mounter.Calls {
		if c.Flags&unix.MS_MOVE != 0 {
			n++
		}
	}
	return n
}

func TestRunRepairsSymlinkedShm(t *testing.T) {
	p := newPipeline(t)
	if err := os.RemoveAll(p.shm); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(p.backing, p.shm); err != nil {
		t.Fatal(err)
	}

	if err := Run(p.opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fi, err := os.Lstat(p.shm)
	if err != nil || !fi.IsDir() {
		t.Errorf("shm not a real directory after run: %v %v", fi, err)
	}
	if p.moveMounts() != 1 {
		t.Errorf("expected one move mount, calls: %+v", p.mounter.Calls)
	}

	// A second boot finds a healthy directory and repairs nothing.
	if err := Run(p.opts); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if p.moveMounts() != 1 {
		t.Errorf("second run repeated the shm repair: %+v", p.mounter.Calls)
	}
}

func TestRunHandsOffAfterSuccessfulActivation(t *testing.T) {
	p := newPipeline(t)

	if err := Run(p.opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !p.exec.Called {
		t.Fatal("handoff never attempted")
	}
	want := []string{"/sbin/wslinit", "--log-target=kmsg", "--unit=default.target"}
	if !reflect.DeepEqual(p.exec.Argv, want) {
		t.Errorf("handoff argv = %v, want %v", p.exec.Argv, want)
	}
}

func TestRunAbortsOnActivationFailure(t *testing.T) {
	p := newPipeline(t)
	p.starter.Register(p.opts.ActivatePath, FakeOutcome{WaitStatus: unix.WaitStatus(17 << 8)})

	err := Run(p.opts)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 17 {
		t.Fatalf("got %v, want exit code 17", err)
	}
	if p.exec.Called {
		t.Error("handoff attempted despite failed activation")
	}
}

func TestRunSurvivesSelfReapingActivation(t *testing.T) {
	p := newPipeline(t)
	p.starter.Register(p.opts.ActivatePath, FakeOutcome{
		WaitErr: errors.New("waitid: no child processes"),
	})
	p.opts.WaitidFn = func(int) error { return unix.ECHILD }

	if err := Run(p.opts); err != nil {
		t.Fatalf("Run failed on self-reaping child: %v", err)
	}
	if !p.exec.Called {
		t.Error("handoff never attempted")
	}
}

func TestRunSurfacesMissingHandoffTarget(t *testing.T) {
	p := newPipeline(t)
	p.exec.Err = unix.ENOENT

	err := Run(p.opts)
	if err == nil {
		t.Fatal("expected error for missing handoff target")
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Errorf("underlying errno lost: %v", err)
	}
}

func TestRunAbortsOnMountFailure(t *testing.T) {
	p := newPipeline(t)
	// The first mount of a healthy-shm run is the root remount.
	p.mounter.Err = unix.EPERM
	p.mounter.FailAt = 1

	err := Run(p.opts)
	if !errors.Is(err, unix.EPERM) {
		t.Fatalf("got %v, want EPERM", err)
	}
	if len(p.starter.Starts) != 0 {
		t.Error("activation spawned despite mount failure")
	}
	if p.exec.Called {
		t.Error("handoff attempted despite mount failure")
	}
}
