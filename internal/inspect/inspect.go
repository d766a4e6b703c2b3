// Package inspect provides read-only probes of the state the boot shim
// cares about. Nothing in here mutates the machine; it backs wslinit-doctor
// and the tests that verify the shim's idempotence.
package inspect

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/util"
	"github.com/moby/sys/mountinfo"
)

// Kind classifies the filesystem object at a path. The symlink case is
// decided by lstat, so a symlink to a directory is still a symlink.
type Kind int

const (
	Absent Kind = iota
	Symlink
	Directory
	File
)

func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Symlink:
		return "symlink"
	case Directory:
		return "directory"
	default:
		return "file"
	}
}

// PathKind reports what sits at path right now. State is never cached;
// callers re-observe on every decision.
func PathKind(path string) (Kind, error) {
	fi, err := os.Lstat(path)
	switch {
	case os.IsNotExist(err):
		return Absent, nil
	case err != nil:
		return Absent, fmt.Errorf("checking %s: %w", path, err)
	case fi.Mode()&fs.ModeSymlink != 0:
		return Symlink, nil
	case fi.IsDir():
		return Directory, nil
	default:
		return File, nil
	}
}

// Mounted reports whether path is a mount point.
func Mounted(path string) (bool, error) {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		return false, fmt.Errorf("checking mount at %s: %w", path, err)
	}
	return mounted, nil
}

// SharedPropagation reports whether the mount at path has shared
// propagation, i.e. carries a shared:N peer group in mountinfo.
func SharedPropagation(path string) (bool, error) {
	entry, err := entryFor(path)
	if err != nil || entry == nil {
		return false, err
	}
	for _, field := range strings.Fields(entry.Optional) {
		if strings.HasPrefix(field, "shared:") {
			return true, nil
		}
	}
	return false, nil
}

// ReadOnly reports whether the mount at path carries the ro option. A path
// that is not a mount point reports false.
func ReadOnly(path string) (bool, error) {
	entry, err := entryFor(path)
	if err != nil || entry == nil {
		return false, err
	}
	for _, opt := range strings.Split(entry.Options, ",") {
		if opt == "ro" {
			return true, nil
		}
	}
	return false, nil
}

func entryFor(path string) (*mountinfo.Info, error) {
	entries, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(path))
	if err != nil {
		return nil, fmt.Errorf("reading mountinfo for %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// osReleasePath is a variable for tests.
var osReleasePath = "/proc/sys/kernel/osrelease"

// IsWSL reports whether we are running on a WSL kernel.
func IsWSL() bool {
	if os.Getenv("WSL_INTEROP") != "" {
		return true
	}
	release, err := os.ReadFile(osReleasePath)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(release)), "microsoft")
}

// SystemdRunning reports whether systemd is the running service manager,
// which after a successful boot it should be.
func SystemdRunning() bool {
	return util.IsRunningSystemd()
}

// Writable reports whether path can be opened for writing.
func Writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
