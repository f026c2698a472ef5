package capturestage

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"

	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
)

// DecodeError counts per-packet decode failures that must never be fatal
// (spec §7 "Per-packet decode").
type DecodeError struct {
	Skipped   uint64
	Unknown   uint64
	ShortSnap uint64
}

// Decode turns raw link-layer packet bytes into a flowtree.Node ready for
// Tree.Insert, peeling off `offset` link-layer bytes first (spec §4.1's
// fixed linktype offsets). It mirrors the teacher's byte-layout decoding
// (pkg/capture/populate.go) rather than gopacket's full layered decoder,
// since only the 5-tuple, flags and byte count are needed.
func Decode(data []byte, ci gopacket.CaptureInfo, offset int, exporter string) (*flowtree.Node, error) {
	if len(data) < offset+1 {
		return nil, fmt.Errorf("short capture: %d bytes", len(data))
	}
	ipLayer := data[offset:]

	n := &flowtree.Node{
		FirstSeen: ci.Timestamp,
		LastSeen:  ci.Timestamp,
		Packets:   1,
		Bytes:     uint64(ci.Length),
		Exporter:  exporter,
	}

	version := ipLayer[0] >> 4
	switch version {
	case 4:
		if err := decodeIPv4(ipLayer, n); err != nil {
			return nil, err
		}
	case 6:
		if err := decodeIPv6(ipLayer, n); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown IP version %d", version)
	}

	return n, nil
}

const ipv4HeaderLen = 20
const ipv6HeaderLen = 40

func decodeIPv4(b []byte, n *flowtree.Node) error {
	if len(b) < ipv4HeaderLen {
		return fmt.Errorf("short IPv4 header")
	}
	n.Key.SrcAddr = netip.AddrFrom4([4]byte(b[12:16]))
	n.Key.DstAddr = netip.AddrFrom4([4]byte(b[16:20]))
	proto := b[9]
	n.Key.Protocol = proto

	if proto != flowtree.ProtoESP {
		fragOffset := (uint16(b[6]&0x1f) << 8) | uint16(b[7])
		if fragOffset != 0 {
			n.Fragmented = true
			return nil // first-fragment-only rule: no transport layer to read
		}
	}

	ihl := int(b[0]&0x0f) * 4
	return decodeTransport(b, ihl, proto, n)
}

func decodeIPv6(b []byte, n *flowtree.Node) error {
	if len(b) < ipv6HeaderLen {
		return fmt.Errorf("short IPv6 header")
	}
	n.Key.SrcAddr = netip.AddrFrom16([16]byte(b[8:24]))
	n.Key.DstAddr = netip.AddrFrom16([16]byte(b[24:40]))
	proto := b[6]
	n.Key.Protocol = proto

	return decodeTransport(b, ipv6HeaderLen, proto, n)
}

func decodeTransport(b []byte, hdrLen int, proto byte, n *flowtree.Node) error {
	switch proto {
	case flowtree.ProtoTCP, flowtree.ProtoUDP:
		if len(b) < hdrLen+4 {
			return fmt.Errorf("short transport header")
		}
		n.Key.SrcPort = uint16(b[hdrLen])<<8 | uint16(b[hdrLen+1])
		n.Key.DstPort = uint16(b[hdrLen+2])<<8 | uint16(b[hdrLen+3])
		if proto == flowtree.ProtoTCP {
			if len(b) < hdrLen+14 {
				return fmt.Errorf("short TCP header")
			}
			n.TCPFlags = b[hdrLen+13]
		}
	case flowtree.ProtoICMP, flowtree.ProtoICMPv6:
		if len(b) < hdrLen+2 {
			return fmt.Errorf("short ICMP header")
		}
		n.ICMPType = b[hdrLen]
		n.ICMPCode = b[hdrLen+1]
	}
	return nil
}

// now is overridable in tests; live-capture idle-tick rotation uses the
// wall clock only in the absence of packets (spec §5 "Timers / wall clock").
var now = time.Now
