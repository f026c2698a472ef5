package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireWritesOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfpcapd.pid")
	require.NoError(t, Acquire(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, Release(path))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestAcquireRemovesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfpcapd.pid")
	// pid 999999 is vanishingly unlikely to be alive in a test sandbox
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0644))
	require.NoError(t, Acquire(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestReleaseOfMissingFileIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.pid")
	require.NoError(t, Release(path))
}
