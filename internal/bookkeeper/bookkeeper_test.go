package bookkeeper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateFromFileAccumulatesPerDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nfcapd.current")
	require.NoError(t, os.WriteFile(path, []byte("some flow record bytes"), 0644))

	b := New()
	require.NoError(t, b.UpdateFromFile(dir, path))
	first := b.Usage(dir)
	assert.Positive(t, first)

	require.NoError(t, b.UpdateFromFile(dir, path))
	assert.Equal(t, 2*first, b.Usage(dir))
}

func TestUpdateFromFileIsNonFatalOnMissingPath(t *testing.T) {
	b := New()
	err := b.UpdateFromFile("/tmp", "/tmp/does-not-exist-nfpcapd-test")
	assert.Error(t, err)
	assert.Zero(t, b.Usage("/tmp"))
}

func TestUsageIsolatesDirectories(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	pathA := filepath.Join(dirA, "nfcapd.current")
	require.NoError(t, os.WriteFile(pathA, []byte("data"), 0644))

	b := New()
	require.NoError(t, b.UpdateFromFile(dirA, pathA))

	assert.Positive(t, b.Usage(dirA))
	assert.Zero(t, b.Usage(dirB))
}
