// wslinit-doctor - report the environment state the wslinit shim depends on
//
// Usage:
//
//	wslinit-doctor [flags]
//
// Doctor runs the same observations the boot shim bases its decisions on,
// without changing anything, and exits nonzero if the environment does not
// look like a successfully shimmed boot.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/mbrock/wslinit/internal/inspect"
	"github.com/mbrock/wslinit/internal/kmsg"
	"github.com/mbrock/wslinit/internal/shim"
)

var (
	shmFlag   string
	storeFlag string
	quietFlag bool
)

func main() {
	flag.StringVar(&shmFlag, "shm", shim.DefaultShmPath, "Shared memory path to check")
	flag.StringVar(&storeFlag, "store", shim.DefaultStorePath, "Package store path to check")
	flag.BoolVarP(&quietFlag, "quiet", "q", false, "No output, exit status only")
	flag.Parse()

	ok := true
	check := func(name string, pass bool, detail string) {
		if !pass {
			ok = false
		}
		if quietFlag {
			return
		}
		status := "ok"
		if !pass {
			status = "FAIL"
		}
		fmt.Printf("%-24s %-4s %s\n", name, status, detail)
	}

	kind, err := inspect.PathKind(shmFlag)
	if err != nil {
		check("shm mount point", false, err.Error())
	} else {
		check("shm mount point", kind == inspect.Directory, fmt.Sprintf("%s is %s", shmFlag, kind))
	}

	shared, err := inspect.SharedPropagation("/")
	if err != nil {
		check("root propagation", false, err.Error())
	} else {
		check("root propagation", shared, propagationDetail(shared))
	}

	readonly, err := inspect.ReadOnly(storeFlag)
	if err != nil {
		check("store read-only", false, err.Error())
	} else {
		check("store read-only", readonly, storeDetail(storeFlag, readonly))
	}

	check("kernel log device", inspect.Writable(kmsg.DevicePath), kmsg.DevicePath)
	check("wsl kernel", inspect.IsWSL(), "osrelease or WSL_INTEROP")
	check("service manager", inspect.SystemdRunning(), "systemd running")

	if !ok {
		os.Exit(1)
	}
}

func propagationDetail(shared bool) string {
	if shared {
		return "/ is shared"
	}
	return "/ is not shared"
}

func storeDetail(store string, readonly bool) string {
	if readonly {
		return store + " is mounted read-only"
	}
	return store + " is writable"
}
