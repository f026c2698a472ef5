package pcapflush

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"github.com/nfpcapd-go/nfpcapd/internal/pcapio"
)

func TestStageRunWritesAndClosesOnDone(t *testing.T) {
	dir := t.TempDir()
	ring := pcapio.NewRingFile(1024)
	stage := New(ring, dir, 0, layers.LinkTypeEthernet, 65535, 5*time.Minute)

	done := make(chan error, 1)
	go func() { done <- stage.Run() }()

	ring.Append(gopacket.CaptureInfo{Timestamp: time.Now(), Length: 4, CaptureLength: 4}, []byte("abcd"))
	ring.Close()

	require.NoError(t, <-done)
	require.True(t, stage.Done())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(dir + "/" + entries[0].Name())
	require.NoError(t, err)
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), data)
}

func TestStageRunRotatesOnRequest(t *testing.T) {
	dir := t.TempDir()
	ring := pcapio.NewRingFile(1024)
	stage := New(ring, dir, 0, layers.LinkTypeEthernet, 65535, 5*time.Second)

	done := make(chan error, 1)
	go func() { done <- stage.Run() }()

	ring.Append(gopacket.CaptureInfo{Timestamp: time.Now(), Length: 4, CaptureLength: 4}, []byte("wxyz"))
	ring.RequestRotate(time.Unix(0, 0))
	// give the stage a moment to process the rotation before closing
	time.Sleep(50 * time.Millisecond)
	ring.Close()

	require.NoError(t, <-done)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2) // rotated+renamed file, plus final in-flight file

	currentName := filepath.Base(pcapio.CurrentName(dir))
	var rotatedName string
	for _, e := range entries {
		if e.Name() != currentName {
			rotatedName = e.Name()
		}
	}
	require.NotEmpty(t, rotatedName, "expected a renamed rotation output alongside the current file")
	// sub-minute window: rotated filename must carry second precision
	// (rotation.TimeFormat), not the minute-granularity name that collides
	// across successive rotations under a short -t window.
	require.Equal(t, "pcapd.19700101000000", rotatedName)
}
