package shim

import (
	"log/slog"
	"os"
)

// Fixed paths of the boot environment. None of these are configurable at
// runtime; the Options overrides exist for tests.
const (
	DefaultShmPath            = "/dev/shm"
	DefaultShmBackingPath     = "/run/shm"
	DefaultRootPath           = "/"
	DefaultStorePath          = "/nix/store"
	DefaultKmsgPath           = "/dev/kmsg"
	DefaultActivatePath       = "/nix/var/nix/profiles/system/activate"
	DefaultServiceManagerPath = "/nix/var/nix/profiles/system/systemd/lib/systemd/systemd"
)

// Options configures a pipeline run. The zero value runs the real boot
// sequence against the fixed paths with real syscalls.
type Options struct {
	ShmPath            string
	ShmBackingPath     string
	RootPath           string
	StorePath          string
	KmsgPath           string
	ActivatePath       string
	ServiceManagerPath string

	// Args is the shim's own argument vector, os.Args shaped: Args[0]
	// becomes argv[0] of the handoff and the rest are forwarded verbatim.
	// Nil means os.Args.
	Args []string

	// Syscall seams, nil meaning the real thing.
	Mounter  Mounter
	Starter  Starter
	WaitidFn func(pid int) error
	Execve   func(path string, argv []string, envv []string) error
}

// Run executes the boot pipeline in its one valid order: repair /dev/shm,
// make / shared, make the store read-only, run activation, exec the service
// manager. Every step mutates machine state the next step depends on, so the
// first failure aborts the whole sequence; nothing is rolled back.
//
// On success Run does not return: the process image has been replaced. It
// returns nil only under an injected Execve.
func Run(opts Options) error {
	repairer := &Repairer{
		ShmPath:     opts.ShmPath,
		BackingPath: opts.ShmBackingPath,
		Mounter:     opts.Mounter,
	}
	slog.Debug("checking shm mount point")
	if err := repairer.Repair(); err != nil {
		return err
	}

	normalizer := &Normalizer{
		RootPath:  opts.RootPath,
		StorePath: opts.StorePath,
		Mounter:   opts.Mounter,
	}
	slog.Debug("remounting root shared")
	if err := normalizer.MakeRootShared(); err != nil {
		return err
	}
	slog.Debug("remounting store read-only")
	if err := normalizer.MakeStoreReadonly(); err != nil {
		return err
	}

	supervisor := &Supervisor{
		ActivatePath: opts.ActivatePath,
		KmsgPath:     opts.KmsgPath,
		Starter:      opts.Starter,
		WaitidFn:     opts.WaitidFn,
	}
	slog.Debug("running activation")
	if err := supervisor.Run(); err != nil {
		return err
	}

	args := opts.Args
	if args == nil {
		args = os.Args
	}
	var argv0 string
	var forwarded []string
	if len(args) > 0 {
		argv0 = args[0]
		forwarded = args[1:]
	}

	handoff := &Handoff{
		TargetPath: opts.ServiceManagerPath,
		Argv0:      argv0,
		Execve:     opts.Execve,
	}
	slog.Debug("handing off to service manager")
	return handoff.Exec(forwarded)
}
