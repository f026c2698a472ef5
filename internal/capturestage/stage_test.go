package capturestage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/nfpcapd-go/nfpcapd/internal/nodelist"
)

// fakeDevice replays a fixed sequence of packets then returns io.EOF.
type fakeDevice struct {
	packets [][]byte
	times   []time.Time
	i       int
}

func (d *fakeDevice) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if d.i >= len(d.packets) {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	data := d.packets[d.i]
	ci := gopacket.CaptureInfo{Timestamp: d.times[d.i], Length: len(data), CaptureLength: len(data)}
	d.i++
	return data, ci, nil
}
func (d *fakeDevice) LinkType() layers.LinkType   { return layers.LinkTypeEthernet }
func (d *fakeDevice) Snaplen() int                { return 65535 }
func (d *fakeDevice) Stats() (DeviceStats, error) { return DeviceStats{}, nil }
func (d *fakeDevice) Close()                      {}

func rawTCPv4(srcPort, dstPort uint16) []byte {
	eth := make([]byte, 14)
	ip := make([]byte, 20)
	ip[0] = 0x45
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], []byte{10, 0, 0, 2})
	ip[9] = 0x06 // TCP
	tcp := make([]byte, 20)
	tcp[0], tcp[1] = byte(srcPort>>8), byte(srcPort)
	tcp[2], tcp[3] = byte(dstPort>>8), byte(dstPort)
	tcp[13] = 0x02 // SYN
	return append(append(eth, ip...), tcp...)
}

func TestStageRunFeedsNodeListAndEOFCloses(t *testing.T) {
	// aligned to a window start so both packets stay in one window and no
	// rotation signal node is pushed between them
	t0 := time.Unix(0, 0).UTC()
	dev := &fakeDevice{
		packets: [][]byte{rawTCPv4(1111, 443), rawTCPv4(2222, 443)},
		times:   []time.Time{t0, t0.Add(time.Second)},
	}

	nodes := nodelist.New(16)
	stage, err := New(dev, nodes, 60*time.Second, "eth0")
	require.NoError(t, err)

	err = stage.Run(context.Background())
	require.NoError(t, err)
	require.True(t, stage.Done())

	count := 0
	for {
		_, ok := nodes.Pop()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}

func TestStageRunStopsOnContextCancel(t *testing.T) {
	dev := &fakeDevice{} // no packets; EOF immediately anyway
	nodes := nodelist.New(16)
	stage, err := New(dev, nodes, 60*time.Second, "eth0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, stage.Run(ctx))
	require.True(t, stage.Done())
}
