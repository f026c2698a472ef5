package flowtree

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func key(srcPort uint16) Key {
	return Key{
		SrcAddr:  netip.MustParseAddr("10.0.0.1"),
		DstAddr:  netip.MustParseAddr("10.0.0.2"),
		SrcPort:  srcPort,
		DstPort:  443,
		Protocol: ProtoTCP,
	}
}

func TestTreeInsertMerges(t *testing.T) {
	tree := New(16, time.Minute, time.Second)
	t0 := time.Now()

	n1 := &Node{Key: key(1), FirstSeen: t0, LastSeen: t0, Packets: 1, Bytes: 60}
	n2 := &Node{Key: key(1), FirstSeen: t0, LastSeen: t0.Add(time.Second), Packets: 1, Bytes: 40}

	tree.Insert(n1)
	require.Equal(t, 1, tree.Len())

	resident := tree.Insert(n2)
	require.Equal(t, 1, tree.Len())
	require.EqualValues(t, 2, resident.Packets)
	require.EqualValues(t, 100, resident.Bytes)
}

func TestTreeEvictsLRUUnderPressure(t *testing.T) {
	tree := New(2, time.Hour, time.Hour)
	t0 := time.Now()

	tree.Insert(&Node{Key: key(1), FirstSeen: t0, LastSeen: t0, Packets: 1, Bytes: 10})
	tree.Insert(&Node{Key: key(2), FirstSeen: t0, LastSeen: t0, Packets: 1, Bytes: 20})
	// touch key(2) so key(1) becomes LRU
	tree.Insert(&Node{Key: key(2), FirstSeen: t0, LastSeen: t0, Packets: 1, Bytes: 1})
	tree.Insert(&Node{Key: key(3), FirstSeen: t0, LastSeen: t0, Packets: 1, Bytes: 30})

	require.Equal(t, 2, tree.Len())
	require.EqualValues(t, 1, tree.Stat().LostPackets)
	require.EqualValues(t, 10, tree.Stat().LostBytes)
}

func TestTreeExpireActiveAndInactive(t *testing.T) {
	tree := New(16, 10*time.Second, 5*time.Second)
	t0 := time.Now()

	// idles out
	tree.Insert(&Node{Key: key(1), FirstSeen: t0, LastSeen: t0, Packets: 1})
	// still alive
	tree.Insert(&Node{Key: key(2), FirstSeen: t0, LastSeen: t0.Add(9 * time.Second), Packets: 1})

	expired := tree.Expire(t0.Add(9 * time.Second))
	require.Len(t, expired, 1)
	require.Equal(t, key(1), expired[0].Key)
	require.Equal(t, 1, tree.Len())
}

func TestTreeHandlesManyDistinctKeysWithoutCrossTalk(t *testing.T) {
	// exercises the bucketed map keyed by Key.Hash(): every key below must
	// remain independently addressable even though several of them are
	// very likely to land in the same hash bucket once wrapped modulo a
	// small map's bucket count.
	tree := New(256, time.Hour, time.Hour)
	t0 := time.Now()

	for port := uint16(1); port <= 200; port++ {
		tree.Insert(&Node{Key: key(port), FirstSeen: t0, LastSeen: t0, Packets: 1, Bytes: uint64(port)})
	}
	require.Equal(t, 200, tree.Len())

	resident := tree.Insert(&Node{Key: key(100), FirstSeen: t0, LastSeen: t0, Packets: 1, Bytes: 5})
	require.EqualValues(t, 2, resident.Packets)
	require.EqualValues(t, 105, resident.Bytes)
	require.Equal(t, 200, tree.Len())
}

func TestTreeFlushDrainsEverything(t *testing.T) {
	tree := New(16, time.Hour, time.Hour)
	t0 := time.Now()
	tree.Insert(&Node{Key: key(1), FirstSeen: t0, LastSeen: t0, Packets: 1})
	tree.Insert(&Node{Key: key(2), FirstSeen: t0, LastSeen: t0, Packets: 1})

	flushed := tree.Flush()
	require.Len(t, flushed, 2)
	require.Equal(t, 0, tree.Len())
}
