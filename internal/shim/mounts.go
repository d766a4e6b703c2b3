package shim

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Normalizer puts the mount table into the shape the service manager and
// nested mount namespaces expect: / with shared propagation and the package
// store bind-mounted read-only.
type Normalizer struct {
	// RootPath is the root mount point. Empty means DefaultRootPath.
	RootPath string

	// StorePath is the package store. Empty means DefaultStorePath.
	StorePath string

	// Mounter performs the mount calls. Nil means the real syscalls.
	Mounter Mounter
}

// MakeRootShared recursively marks the root mount and all submounts as
// shared-propagation. No data is remounted, only the propagation type
// changes, so calling this on an already-shared tree is a no-op.
func (n *Normalizer) MakeRootShared() error {
	root := n.rootPath()
	if err := n.mounter().Mount("", root, "", unix.MS_REC|unix.MS_SHARED, ""); err != nil {
		return fmt.Errorf("remounting %s shared: %w", root, err)
	}
	return nil
}

// MakeStoreReadonly bind-mounts the store onto itself and then remounts that
// bind read-only. Two calls are required: the kernel will not combine
// creating a bind mount with changing its flags, so the bind must exist
// before MS_REMOUNT|MS_RDONLY can apply to it. A bind that succeeded but
// could not be made read-only is a fatal error, not a writable store left
// behind silently.
func (n *Normalizer) MakeStoreReadonly() error {
	store := n.storePath()
	if err := n.mounter().Mount(store, store, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind mounting %s: %w", store, err)
	}
	if err := n.mounter().Mount(store, store, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
		return fmt.Errorf("remounting %s read-only: %w", store, err)
	}
	return nil
}

func (n *Normalizer) rootPath() string {
	if n.RootPath != "" {
		return n.RootPath
	}
	return DefaultRootPath
}

func (n *Normalizer) storePath() string {
	if n.StorePath != "" {
		return n.StorePath
	}
	return DefaultStorePath
}

func (n *Normalizer) mounter() Mounter {
	if n.Mounter != nil {
		return n.Mounter
	}
	return unixMounter{}
}
