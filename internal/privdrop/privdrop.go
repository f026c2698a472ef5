// Package privdrop drops process UID/GID after privileged setup (socket
// open, interface attach), grounded on nfpcapd.c's SetPriv() (spec §6
// `-u`/`-g`).
package privdrop

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// Drop switches the process's GID then UID to the named group/user. Group
// is dropped first, since once the UID is dropped the process typically no
// longer has permission to change its GID. Either name may be empty to
// skip that half of the drop.
func Drop(userName, groupName string) error {
	if groupName != "" {
		gid, err := resolveGroup(groupName)
		if err != nil {
			return err
		}
		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf("setgid(%d): %w", gid, err)
		}
	}

	if userName != "" {
		uid, err := resolveUser(userName)
		if err != nil {
			return err
		}
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("setuid(%d): %w", uid, err)
		}
	}

	return nil
}

func resolveUser(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, fmt.Errorf("lookup user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, fmt.Errorf("parse uid for %q: %w", name, err)
	}
	return uid, nil
}

func resolveGroup(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("lookup group %q: %w", name, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("parse gid for %q: %w", name, err)
	}
	return gid, nil
}
