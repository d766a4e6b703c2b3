package shim

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestHandoffArgvShape(t *testing.T) {
	fake := &FakeExec{}
	handoff := &Handoff{
		TargetPath: "/fake/systemd",
		Argv0:      "/sbin/wslinit",
		Execve:     fake.Exec,
	}

	if err := handoff.Exec([]string{"--unit=default.target", "extra"}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	if fake.Path != "/fake/systemd" {
		t.Errorf("exec path = %q, want /fake/systemd", fake.Path)
	}
	want := []string{"/sbin/wslinit", "--log-target=kmsg", "--unit=default.target", "extra"}
	if !reflect.DeepEqual(fake.Argv, want) {
		t.Errorf("argv = %v, want %v", fake.Argv, want)
	}
	if len(fake.Env) == 0 {
		t.Error("environment not forwarded")
	}
}

func TestHandoffNoForwardedArgs(t *testing.T) {
	fake := &FakeExec{}
	handoff := &Handoff{TargetPath: "/fake/systemd", Argv0: "init", Execve: fake.Exec}

	if err := handoff.Exec(nil); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	want := []string{"init", "--log-target=kmsg"}
	if !reflect.DeepEqual(fake.Argv, want) {
		t.Errorf("argv = %v, want %v", fake.Argv, want)
	}
}

func TestHandoffExecFailure(t *testing.T) {
	fake := &FakeExec{Err: unix.ENOENT}
	handoff := &Handoff{TargetPath: "/fake/systemd", Argv0: "init", Execve: fake.Exec}

	err := handoff.Exec(nil)
	if err == nil {
		t.Fatal("expected error when exec fails")
	}
	if !strings.Contains(err.Error(), "executing /fake/systemd") {
		t.Errorf("error lacks target context: %v", err)
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Errorf("underlying errno lost: %v", err)
	}
}
