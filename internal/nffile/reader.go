package nffile

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
)

// Reader reads back a file produced by Writer, primarily used by tests and
// by any future inspection tooling.
type Reader struct {
	f  *os.File
	r  io.Reader
	zr io.Closer
}

// Open opens path for reading, detecting the codec from its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(br, hdr); err != nil {
		f.Close()
		return nil, err
	}
	if string(hdr) != magic {
		f.Close()
		return nil, fmt.Errorf("not an nffile: bad magic")
	}
	compByte, err := br.ReadByte()
	if err != nil {
		f.Close()
		return nil, err
	}

	rd := &Reader{f: f}
	switch Compression(compByte) {
	case CompressionLZ4:
		rd.r = lz4.NewReader(br)
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		ioRC := zr.IOReadCloser()
		rd.r = ioRC
		rd.zr = ioRC
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		rd.r = zr
		rd.zr = zr
	default:
		rd.r = br
	}
	return rd, nil
}

// Close releases the underlying file and codec resources.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.f.Close()
}

// Next reads the next record. ok is false at end of stream. footer is
// non-nil only for the trailing StatRecord.
func (r *Reader) Next() (node *flowtree.Node, footer *flowtree.StatRecord, ok bool, err error) {
	var kind recordKind
	if err = binary.Read(r.r, binary.BigEndian, &kind); err != nil {
		if err == io.EOF {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}

	switch kind {
	case kindFlow:
		node, err = decodeFlow(r.r)
		return node, nil, err == nil, err
	case kindFooter:
		footer, err = decodeFooter(r.r)
		return nil, footer, err == nil, err
	default:
		return nil, nil, false, fmt.Errorf("unknown record kind %d", kind)
	}
}

func decodeFlow(r io.Reader) (*flowtree.Node, error) {
	var addrLen uint8
	if err := binary.Read(r, binary.BigEndian, &addrLen); err != nil {
		return nil, err
	}
	src := make([]byte, addrLen)
	dst := make([]byte, addrLen)
	if _, err := io.ReadFull(r, src); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, err
	}

	srcAddr, _ := addrFromBytes(src)
	dstAddr, _ := addrFromBytes(dst)

	n := &flowtree.Node{}
	n.Key.SrcAddr = srcAddr
	n.Key.DstAddr = dstAddr

	var firstMicro, lastMicro int64
	fields := []interface{}{
		&n.Key.SrcPort, &n.Key.DstPort, &n.Key.Protocol,
		&n.IngressIface, &n.EgressIface,
		&firstMicro, &lastMicro,
		&n.Packets, &n.Bytes,
		&n.TCPFlags, &n.ICMPType, &n.ICMPCode,
		&n.Fragmented,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	n.FirstSeen = time.UnixMicro(firstMicro)
	n.LastSeen = time.UnixMicro(lastMicro)

	exporter, err := readString(r)
	if err != nil {
		return nil, err
	}
	n.Exporter = exporter
	return n, nil
}

func decodeFooter(r io.Reader) (*flowtree.StatRecord, error) {
	s := flowtree.NewStatRecord()
	var firstMilli, lastMilli int64
	var numExporters uint32
	fields := []interface{}{
		&s.Flows, &s.Packets, &s.Bytes,
		&firstMilli, &lastMilli,
		&s.LostPackets, &s.LostBytes,
		&numExporters,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	s.FirstSeen = time.UnixMilli(firstMilli)
	s.LastSeen = time.UnixMilli(lastMilli)

	for i := uint32(0); i < numExporters; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		exp := &flowtree.ExporterStat{}
		fields := []interface{}{&exp.Flows, &exp.Packets, &exp.Bytes}
		for _, f := range fields {
			if err := binary.Read(r, binary.BigEndian, f); err != nil {
				return nil, err
			}
		}
		s.Exporters[name] = exp
	}
	return s, nil
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func addrFromBytes(b []byte) (netip.Addr, bool) {
	switch len(b) {
	case 4:
		return netip.AddrFrom4([4]byte(b)), true
	case 16:
		return netip.AddrFrom16([16]byte(b)), true
	default:
		return netip.Addr{}, false
	}
}
