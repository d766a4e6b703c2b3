// Package kmsg writes severity-tagged log lines to the kernel log device.
//
// Before the real service manager is running, /dev/kmsg is the only log
// destination that survives the boot (journald does not exist yet), so the
// shim's slog output goes there in the classic printk format: each record is
// one write of "<priority>tag: message".
package kmsg

import (
	"fmt"
	"os"
)

// DevicePath is the kernel log device.
const DevicePath = "/dev/kmsg"

// maxRecord caps a single record. The kernel truncates writes around 1k
// (LOG_LINE_MAX), so longer lines are cut rather than split.
const maxRecord = 1024

// Open opens the kernel log device for writing. If path is empty,
// DevicePath is used.
func Open(path string) (*os.File, error) {
	if path == "" {
		path = DevicePath
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}
