// Package pcapio implements the double-buffered pcap writer state shared
// between the capture stage (appender) and the pcap-flush stage (writer),
// and the pcap file primitives used by both (spec §3 "PcapRingFile", §4.3).
package pcapio

import (
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// DefaultBufferSize is the default size (bytes) at which the capture stage
// swaps the active buffer for flushing: 1 MiB. The CLI's `-b` flag sizes the
// live capture device's buffer, not this threshold.
const DefaultBufferSize = 1 << 20

// Record is one captured packet queued for the pcap ring (timestamp, wire
// length and snapped bytes), kept alongside the raw data since WritePacket
// needs CaptureInfo, not just the bytes.
type Record struct {
	CI   gopacket.CaptureInfo
	Data []byte
}

// RingFile is the writer state for the current pcap.current.<pid> file. At
// any instant at most one of the two slots is being written to by the OS,
// and appends to the active slot never race with that write: the mutex
// protects only the swap and the size handoff, per DESIGN NOTES "Double
// buffer ownership" (spec §9).
type RingFile struct {
	mu   sync.Mutex
	cond *sync.Cond

	active     []Record // exclusively touched by the capture stage
	activeSize int
	staged     []Record // exclusively touched by the flush stage once handed over
	maxSize    int

	// CloseRename, when non-zero, is the window start the flush stage
	// should rename the current file to once it has drained. Set by the
	// capture stage while holding mu (spec §4.1 "PCAP rotation protocol").
	closeRename time.Time
	haveRename  bool

	done bool
}

// NewRingFile constructs an empty RingFile with the given swap threshold
// (total packet bytes, not record count).
func NewRingFile(maxSize int) *RingFile {
	if maxSize <= 0 {
		maxSize = DefaultBufferSize
	}
	r := &RingFile{maxSize: maxSize}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Append is called by the capture stage for every captured packet. If the
// active buffer has reached maxSize, it swaps active/staged (a pure slice
// exchange) and wakes the flush stage.
func (r *RingFile) Append(ci gopacket.CaptureInfo, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, Record{CI: ci, Data: data})
	r.activeSize += len(data)
	if r.activeSize >= r.maxSize {
		r.swapLocked()
	}
}

func (r *RingFile) swapLocked() {
	if len(r.staged) > 0 {
		// flush stage hasn't drained the previous handoff yet; append
		// continues to accumulate in active rather than losing data.
		return
	}
	r.active, r.staged = r.staged, r.active
	r.activeSize = 0
	r.cond.Signal()
}

// RequestRotate is called by the capture stage when the rotation window has
// elapsed. It records the window start to rename to and wakes the flush
// stage so it picks the rotation up on its next wait cycle.
func (r *RingFile) RequestRotate(windowStart time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeRename = windowStart
	r.haveRename = true
	r.cond.Signal()
}

// Close marks the ring done: the flush stage will drain the active buffer
// (treated as a final staged handoff) and exit instead of waiting again.
func (r *RingFile) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.cond.Signal()
}

// WaitForWork blocks until there is a staged buffer to write, a rotation has
// been requested, or the ring has been closed. It returns the staged
// records, the pending rotation (zero time + false if none), and whether
// the ring is done.
func (r *RingFile) WaitForWork() (staged []Record, rotateAt time.Time, haveRotate bool, done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.staged) == 0 && !r.haveRename && !r.done {
		r.cond.Wait()
	}

	if len(r.staged) > 0 {
		staged = r.staged
		r.staged = nil
	}

	if r.done && len(r.active) > 0 {
		staged = append(staged, r.active...)
		r.active = nil
		r.activeSize = 0
	}

	rotateAt, haveRotate = r.closeRename, r.haveRename
	r.haveRename = false
	done = r.done
	return
}

// PacketWriter abstracts the on-disk pcap encoder so RingFile consumers don't
// need to depend on pcapgo directly when constructing raw records.
type PacketWriter interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

var _ PacketWriter = (*pcapgo.Writer)(nil)
