package shim

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// Repairer fixes a /dev/shm that was provisioned as a symlink to its backing
// path instead of a real mount point.
//
// WSL sets up /dev/shm as a symlink to /run/shm, which breaks software that
// expects a tmpfs directory there (and breaks nested mount namespaces that
// want to mount over it). The repair replaces the symlink with a directory,
// moves the backing mount onto it, and bind-mounts it back so the old path
// keeps working.
type Repairer struct {
	// ShmPath is the shared memory mount point. Empty means DefaultShmPath.
	ShmPath string

	// BackingPath is where the tmpfs actually lives. Empty means
	// DefaultShmBackingPath.
	BackingPath string

	// Mounter performs the mount calls. Nil means the real syscalls.
	Mounter Mounter
}

// Repair inspects the shared memory path and rebuilds it if it is a symlink.
// A path that is already a real directory is left untouched, which makes
// Repair safe to call on every boot.
func (r *Repairer) Repair() error {
	shm := r.shmPath()

	fi, err := os.Lstat(shm)
	if err != nil {
		return fmt.Errorf("checking %s: %w", shm, err)
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		slog.Debug("shm path is not a symlink, leaving as-is", "path", shm)
		return nil
	}
	return r.rebuild()
}

// rebuild replaces whatever sits at the shm path with a fresh directory and
// relocates the backing mount onto it. The state is re-observed here rather
// than trusted from Repair, since every branch below is destructive.
func (r *Repairer) rebuild() error {
	shm := r.shmPath()
	backing := r.backingPath()
	slog.Debug("rebuilding shm mount point", "path", shm, "backing", backing)

	fi, err := os.Lstat(shm)
	switch {
	case err == nil && fi.Mode()&fs.ModeSymlink != 0:
		if err := os.Remove(shm); err != nil {
			return fmt.Errorf("removing %s symlink: %w", shm, err)
		}
	case err == nil && fi.IsDir():
		// Leftover from an interrupted earlier repair. Removed without
		// ceremony; a half-repaired boot needs intervention anyway.
		if err := os.RemoveAll(shm); err != nil {
			return fmt.Errorf("removing old %s: %w", shm, err)
		}
	}

	if err := os.MkdirAll(shm, 0o755); err != nil {
		return fmt.Errorf("creating new %s: %w", shm, err)
	}
	if err := r.mounter().Mount(backing, shm, "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("relocating %s: %w", shm, err)
	}
	// Keep the backing path usable for anything still referencing it.
	if err := r.mounter().Mount(shm, backing, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind mounting %s to %s: %w", backing, shm, err)
	}
	return nil
}

func (r *Repairer) shmPath() string {
	if r.ShmPath != "" {
		return r.ShmPath
	}
	return DefaultShmPath
}

func (r *Repairer) backingPath() string {
	if r.BackingPath != "" {
		return r.BackingPath
	}
	return DefaultShmBackingPath
}

func (r *Repairer) mounter() Mounter {
	if r.Mounter != nil {
		return r.Mounter
	}
	return unixMounter{}
}
