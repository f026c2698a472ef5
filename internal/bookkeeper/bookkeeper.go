// Package bookkeeper accounts cumulative on-disk usage per output
// directory, grounded on nfpcapd.c's UpdateBooks/stat().st_blocks
// accounting (spec glossary "Bookkeeper").
package bookkeeper

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Books tracks cumulative disk usage (in bytes) per tracked directory.
type Books struct {
	mu    sync.Mutex
	usage map[string]uint64
}

// New returns an empty Books tracker.
func New() *Books {
	return &Books{usage: make(map[string]uint64)}
}

// UpdateFromFile stats path and adds its allocated block size (st_blocks *
// 512, the portable disk-usage unit) to dir's running total. Errors are
// non-fatal: a failed stat simply skips the update for that window (spec
// §4.2 step 7).
func (b *Books) UpdateFromFile(dir, path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[dir] += uint64(st.Blocks) * 512
	return nil
}

// Usage returns the cumulative tracked bytes for dir.
func (b *Books) Usage(dir string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[dir]
}
