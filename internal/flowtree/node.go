package flowtree

import "time"

// Node represents a single unidirectional flow in progress. It is created by
// the capture stage on first sighting of a 5-tuple and mutated exclusively by
// the flow stage thereafter.
type Node struct {
	Key Key

	// IngressIface/EgressIface identify the capturing interface bits; for a
	// single-source daemon these are always the same device index.
	IngressIface uint32
	EgressIface  uint32

	FirstSeen time.Time
	LastSeen  time.Time

	Packets uint64
	Bytes   uint64

	TCPFlags uint8
	ICMPType uint8
	ICMPCode uint8

	// Fragmented marks a flow derived from fragmented IP traffic, where
	// only the first fragment carries transport-layer port information.
	Fragmented bool

	// Signal marks a sentinel node (SIGNAL_NODE) pushed onto the node list
	// purely to trigger time-based rotation; it carries no flow data and
	// must never be inserted into the tree.
	Signal bool

	// Exporter identifies the flow source that produced this node (see
	// DESIGN.md Open Question 1 — always a single synthetic value today).
	Exporter string
}

// SignalNode constructs a sentinel node used to drive rotation in the
// absence of real traffic, carrying only the clock sample that triggered it.
func SignalNode(at time.Time) *Node {
	return &Node{Signal: true, FirstSeen: at, LastSeen: at}
}

// Merge folds the observation in o (a newly decoded packet's worth of
// attributes) into n, which must already be the tree's resident node for
// n.Key. It updates last-seen, counters and the accumulated TCP flags.
func (n *Node) Merge(o *Node) {
	if o.FirstSeen.Before(n.FirstSeen) {
		n.FirstSeen = o.FirstSeen
	}
	if o.LastSeen.After(n.LastSeen) {
		n.LastSeen = o.LastSeen
	}
	n.Packets += o.Packets
	n.Bytes += o.Bytes
	n.TCPFlags |= o.TCPFlags
	if o.ICMPType != 0 {
		n.ICMPType = o.ICMPType
		n.ICMPCode = o.ICMPCode
	}
}

// IdleFor reports how long the node has been inactive as of `now`.
func (n *Node) IdleFor(now time.Time) time.Duration {
	return now.Sub(n.LastSeen)
}

// AliveFor reports the total lifetime of the node as of `now`.
func (n *Node) AliveFor(now time.Time) time.Duration {
	return now.Sub(n.FirstSeen)
}
