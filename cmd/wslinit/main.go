// wslinit - first-process boot shim for NixOS on WSL
//
// wslinit runs before the real service manager and repairs the environment
// WSL hands us: it rebuilds a symlinked /dev/shm into a real mount point,
// makes / shared so nested mount namespaces work, bind-mounts /nix/store
// read-only, runs the system activation script to completion, and then execs
// systemd in place, forwarding its own arguments.
//
// It takes no flags of its own; every argument is forwarded verbatim to
// systemd after an injected --log-target=kmsg. On success it never returns.
package main

import (
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/mbrock/wslinit/internal/kmsg"
	"github.com/mbrock/wslinit/internal/shim"
)

func main() {
	// Full goroutine dumps on a crash; this runs once per boot, so the
	// verbosity is worth it. Must happen before any logging.
	debug.SetTraceback("all")

	level := slog.LevelInfo
	if os.Getenv("WSLINIT_DEBUG") != "" {
		level = slog.LevelDebug
	}

	if logf, err := kmsg.Open(""); err == nil {
		slog.SetDefault(slog.New(kmsg.NewHandler(logf, "wslinit", level)))
	} else {
		// No kernel log device; stderr is the best we have.
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	if err := shim.Run(shim.Options{}); err != nil {
		slog.Error("boot shim failed", "err", err)
		os.Exit(1)
	}
}
