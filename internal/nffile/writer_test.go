package nffile

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
)

func TestWriteReadRoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd, CompressionGzip} {
		comp := comp
		t.Run("", func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "nfcapd.current.test")

			w, err := Create(path, comp)
			require.NoError(t, err)

			now := time.Now().Truncate(time.Microsecond)
			n := &flowtree.Node{
				Key: flowtree.Key{
					SrcAddr:  netip.MustParseAddr("192.0.2.1"),
					DstAddr:  netip.MustParseAddr("192.0.2.2"),
					SrcPort:  1234,
					DstPort:  443,
					Protocol: flowtree.ProtoTCP,
				},
				FirstSeen: now,
				LastSeen:  now.Add(time.Second),
				Packets:   10,
				Bytes:     1500,
				Exporter:  "eth0",
			}
			require.NoError(t, w.WriteFlow(n))

			stat := flowtree.NewStatRecord()
			stat.Observe(n)
			require.NoError(t, w.WriteFooter(stat))
			require.NoError(t, w.Close())

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			gotNode, _, ok, err := r.Next()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, n.Key, gotNode.Key)
			require.Equal(t, n.Packets, gotNode.Packets)
			require.Equal(t, n.Exporter, gotNode.Exporter)

			_, gotFooter, ok, err := r.Next()
			require.NoError(t, err)
			require.True(t, ok)
			require.EqualValues(t, 1, gotFooter.Flows)
			require.EqualValues(t, 10, gotFooter.Packets)

			_, _, ok, err = r.Next()
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}
