// Package pidfile implements the daemon's pidfile lifecycle, grounded on
// nfpcapd.c's stale-lock detection via a null-signal kill(2) test (spec §6
// "Pidfile").
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Acquire checks path for an existing, live pidfile. If one exists and its
// process is still alive, it returns an error refusing to start. A stale
// file (process gone) is removed. On success, the current process's PID is
// written to path.
func Acquire(path string) error {
	if path == "" {
		return nil
	}

	if data, err := os.ReadFile(path); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && pid > 0 {
			if err := unix.Kill(pid, 0); err == nil {
				return fmt.Errorf("pidfile %s: process %d is still running", path, pid)
			}
		}
		// stale: owning process no longer exists (or PID unreadable); remove.
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale pidfile %s: %w", path, err)
		}
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// Release removes path on clean shutdown. Missing-file is not an error.
func Release(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
