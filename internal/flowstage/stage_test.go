package flowstage

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
	"github.com/nfpcapd-go/nfpcapd/internal/nffile"
	"github.com/nfpcapd-go/nfpcapd/internal/nodelist"
)

func mkNode(srcPort uint16, t0 time.Time) *flowtree.Node {
	return &flowtree.Node{
		Key: flowtree.Key{
			SrcAddr:  netip.MustParseAddr("10.0.0.1"),
			DstAddr:  netip.MustParseAddr("10.0.0.2"),
			SrcPort:  srcPort,
			DstPort:  443,
			Protocol: flowtree.ProtoTCP,
		},
		FirstSeen: t0,
		LastSeen:  t0,
		Packets:   1,
		Bytes:     64,
		Exporter:  "eth0",
	}
}

func TestStageRunWritesFileOnShutdown(t *testing.T) {
	dir := t.TempDir()
	tree := flowtree.New(16, 0, 0)
	nodes := nodelist.New(8)

	stage := New(tree, nodes, dir, 0, nffile.CompressionNone)

	t0 := time.Now()
	nodes.Push(mkNode(1111, t0))
	nodes.Push(mkNode(2222, t0.Add(time.Millisecond)))
	nodes.Close()

	require.NoError(t, stage.Run(5*time.Minute))
	require.True(t, stage.Done())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	r, err := nffile.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer r.Close()

	count := 0
	var sawFooter bool
	for {
		node, footer, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		if footer != nil {
			sawFooter = true
			require.EqualValues(t, 2, footer.Flows)
			continue
		}
		require.NotNil(t, node)
		count++
	}
	require.Equal(t, 2, count)
	require.True(t, sawFooter)
}

func TestStageRunRotatesOnWindowBoundary(t *testing.T) {
	dir := t.TempDir()
	tree := flowtree.New(16, 0, 0)
	nodes := nodelist.New(8)

	stage := New(tree, nodes, dir, 0, nffile.CompressionNone)

	t0 := time.Unix(0, 0).UTC()
	nodes.Push(mkNode(1111, t0))
	nodes.Push(flowtree.SignalNode(t0.Add(time.Minute)))
	nodes.Push(mkNode(2222, t0.Add(time.Minute)))
	nodes.Close()

	require.NoError(t, stage.Run(time.Minute))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	// one file renamed at the window boundary, plus the final window's file
	// renamed on shutdown.
	require.Len(t, entries, 2)
}
