package nffile

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"net/netip"

	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
)

// newGzipWriter wraps compress/gzip, the sole stdlib-based codec carried by
// this package (see SPEC_FULL.md: no ecosystem BZ2 encoder exists).
func newGzipWriter(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}

func encodeFlow(w io.Writer, n *flowtree.Node) error {
	var fields []interface{}

	srcBytes := addrBytes(n.Key.SrcAddr)
	dstBytes := addrBytes(n.Key.DstAddr)

	fields = append(fields,
		uint8(len(srcBytes)),
	)
	for _, f := range fields {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(srcBytes); err != nil {
		return err
	}
	if _, err := w.Write(dstBytes); err != nil {
		return err
	}

	rest := []interface{}{
		n.Key.SrcPort,
		n.Key.DstPort,
		n.Key.Protocol,
		n.IngressIface,
		n.EgressIface,
		n.FirstSeen.UnixMicro(),
		n.LastSeen.UnixMicro(),
		n.Packets,
		n.Bytes,
		n.TCPFlags,
		n.ICMPType,
		n.ICMPCode,
		n.Fragmented,
	}
	for _, f := range rest {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return writeString(w, n.Exporter)
}

func encodeFooter(w io.Writer, s *flowtree.StatRecord) error {
	fields := []interface{}{
		s.Flows,
		s.Packets,
		s.Bytes,
		s.FirstSeen.UnixMilli(),
		s.LastSeen.UnixMilli(),
		s.LostPackets,
		s.LostBytes,
		uint32(len(s.Exporters)),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return err
		}
	}
	for name, exp := range s.Exporters {
		if err := writeString(w, name); err != nil {
			return err
		}
		expFields := []interface{}{exp.Flows, exp.Packets, exp.Bytes}
		for _, f := range expFields {
			if err := binary.Write(w, binary.BigEndian, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func addrBytes(a netip.Addr) []byte {
	return a.AsSlice()
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}
