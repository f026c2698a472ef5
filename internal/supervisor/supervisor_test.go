package supervisor

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/nfpcapd-go/nfpcapd/internal/capturestage"
	"github.com/nfpcapd-go/nfpcapd/internal/config"
)

// fakeDevice replays a fixed sequence of packets then blocks until closed,
// at which point it reports EOF, mimicking a live device that stops
// yielding packets once torn down.
type fakeDevice struct {
	packets [][]byte
	i       int
	closed  chan struct{}
}

func newFakeDevice(packets [][]byte) *fakeDevice {
	return &fakeDevice{packets: packets, closed: make(chan struct{})}
}

func (d *fakeDevice) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if d.i < len(d.packets) {
		data := d.packets[d.i]
		d.i++
		return data, gopacket.CaptureInfo{Timestamp: time.Now(), Length: len(data), CaptureLength: len(data)}, nil
	}
	<-d.closed
	return nil, gopacket.CaptureInfo{}, io.EOF
}
func (d *fakeDevice) LinkType() layers.LinkType { return layers.LinkTypeEthernet }
func (d *fakeDevice) Snaplen() int              { return 65535 }
func (d *fakeDevice) Stats() (capturestage.DeviceStats, error) {
	return capturestage.DeviceStats{}, nil
}
func (d *fakeDevice) Close() { close(d.closed) }

func rawUDPv4() []byte {
	eth := make([]byte, 14)
	ip := make([]byte, 20)
	ip[0] = 0x45
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], []byte{10, 0, 0, 2})
	ip[9] = 0x11 // UDP
	udp := make([]byte, 8)
	udp[2], udp[3] = 0x00, 0x35 // dst port 53
	return append(append(eth, ip...), udp...)
}

func TestSupervisorRunProcessesPacketsAndShutsDownCleanly(t *testing.T) {
	dir := t.TempDir()

	cfg := config.New()
	cfg.Ident = "testdev"
	cfg.Flow.Dir = dir
	cfg.Flow.WindowSeconds = 3600
	cfg.Flow.Compression = "none"

	dev := newFakeDevice([][]byte{rawUDPv4(), rawUDPv4()})

	sup, err := New(cfg, dev, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	status := sup.Status()
	require.Equal(t, "testdev", status.Interface)

	cancel()
	dev.Close()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down in time")
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
