// Package flowtree implements the flow-stage's ordered, capacity-bounded
// associative container of in-progress unidirectional flows.
package flowtree

import (
	"net/netip"

	"github.com/zeebo/xxh3"
)

// Protocol numbers relevant to flow keying and flag accumulation.
const (
	ProtoICMP   = 0x01
	ProtoTCP    = 0x06
	ProtoUDP    = 0x11
	ProtoESP    = 0x32
	ProtoICMPv6 = 0x3A
)

// Key uniquely identifies a unidirectional flow: the 5-tuple of protocol,
// source/destination address, and source/destination port.
type Key struct {
	SrcAddr  netip.Addr
	DstAddr  netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Hash returns a fast, non-cryptographic hash of the key, used to bucket
// entries in the tree's backing map without relying on Go's built-in map
// hash (which is randomized per process and unsuitable for any on-disk
// or cross-process determinism requirements downstream).
func (k Key) Hash() uint64 {
	var buf [37]byte
	n := copy(buf[:], k.SrcAddr.AsSlice())
	n += copy(buf[n:], k.DstAddr.AsSlice())
	buf[n] = byte(k.SrcPort >> 8)
	buf[n+1] = byte(k.SrcPort)
	buf[n+2] = byte(k.DstPort >> 8)
	buf[n+3] = byte(k.DstPort)
	buf[n+4] = k.Protocol
	return xxh3.Hash(buf[:n+5])
}

// IsIPv4 reports whether both endpoints of the key are IPv4 addresses.
func (k Key) IsIPv4() bool {
	return k.SrcAddr.Is4() && k.DstAddr.Is4()
}
