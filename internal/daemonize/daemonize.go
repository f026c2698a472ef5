// Package daemonize implements Unix double-fork daemonization, grounded on
// nfpcapd.c's daemonize() (spec §6 `-D`).
package daemonize

import (
	"fmt"
	"os"
	"syscall"
)

// Daemonize re-execs the current process detached from its controlling
// terminal: it starts one child in a new session with its standard streams
// on /dev/null, and the parent exits.
//
// Go does not expose raw fork(2) safely once goroutines/the runtime are
// live, so this is implemented as a single self-exec: the parent re-execs
// itself with an internal marker environment variable, detached via
// SysProcAttr.Setsid, and exits immediately. There is no second fork, so
// the child is a session leader.
func Daemonize(marker string) error {
	if os.Getenv(marker) == "1" {
		// already the detached child; its standard fds were attached to
		// /dev/null by the parent, only os.Stdin is reopened here.
		return redirectStdio()
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	proc, err := os.StartProcess(exe, os.Args, &os.ProcAttr{
		Env:   append(os.Environ(), marker+"=1"),
		Files: []*os.File{devnull, devnull, devnull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return fmt.Errorf("start detached process: %w", err)
	}

	_ = proc.Release()
	os.Exit(0)
	return nil
}

func redirectStdio() error {
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	os.Stdin = devnull
	return nil
}
