package capturestage

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
	"github.com/nfpcapd-go/nfpcapd/internal/logging"
	"github.com/nfpcapd-go/nfpcapd/internal/nodelist"
	"github.com/nfpcapd-go/nfpcapd/internal/pcapio"
	"github.com/nfpcapd-go/nfpcapd/internal/rotation"
)

// Stage is the capture stage (spec §4.1): it owns the packet source, the
// node list it feeds, and (optionally) the pcap ring buffer it appends to.
type Stage struct {
	dev      Device
	offset   int
	exporter string

	nodes *nodelist.List
	ring  *pcapio.RingFile // nil disables pcap dual-output

	window         rotation.Window
	windowInterval time.Duration
	windowSet      bool

	done atomic.Bool

	decodeErrs DecodeError
	log        *logging.L
}

// Option configures a Stage at construction time.
type Option func(*Stage)

// WithPcapRing enables pcap dual-output via the given ring buffer.
func WithPcapRing(r *pcapio.RingFile) Option {
	return func(s *Stage) { s.ring = r }
}

// WithLogger attaches a logger; defaults to logging.Logger().
func WithLogger(l *logging.L) Option {
	return func(s *Stage) { s.log = l }
}

// New constructs a capture Stage.
func New(dev Device, nodes *nodelist.List, windowInterval time.Duration, exporter string, opts ...Option) (*Stage, error) {
	offset, ok := LinkOffset[dev.LinkType()]
	if !ok {
		return nil, errors.New("unsupported link type")
	}
	s := &Stage{
		dev:            dev,
		offset:         offset,
		exporter:       exporter,
		nodes:          nodes,
		windowInterval: windowInterval,
		log:            logging.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DecodeErrors returns the running per-packet decode error tallies.
func (s *Stage) DecodeErrors() DecodeError { return s.decodeErrs }

// LinkType reports the underlying device's link-layer type, needed by the
// pcap-flush stage to write a matching pcap file header.
func (s *Stage) LinkType() layers.LinkType { return s.dev.LinkType() }

// Snaplen reports the underlying device's snap length, needed by the
// pcap-flush stage to write a matching pcap file header.
func (s *Stage) Snaplen() int { return s.dev.Snaplen() }

// Done reports whether the stage has observed EOF/error/cancellation and
// finished draining (spec §9: atomic flag replacing thread-local signals).
func (s *Stage) Done() bool { return s.done.Load() }

// Run pulls packets until ctx is cancelled, the source reaches EOF, or a
// fatal read error occurs. It always closes the node list (and, if
// present, the pcap ring) before returning, so downstream stages observe a
// clean shutdown regardless of why Run returned (spec §4.1 "Failure
// semantics").
func (s *Stage) Run(ctx context.Context) error {
	defer func() {
		s.done.Store(true)
		s.nodes.Close()
		if s.ring != nil {
			s.ring.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		data, ci, err := s.dev.ReadPacketData()
		switch {
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			s.onIdleTick(now())
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		s.processPacket(data, ci)

		if !s.windowSet {
			s.window = rotation.For(ci.Timestamp, s.windowInterval)
			s.windowSet = true
		} else if s.window.Elapsed(ci.Timestamp) {
			s.rotate(ci.Timestamp)
		}
	}
}

// processPacket decodes one captured packet and fans it out to the flow
// pipeline and, if enabled, the pcap ring buffer (spec §4.1 "Per-packet
// control flow"). Decode failures are tallied, never fatal.
func (s *Stage) processPacket(data []byte, ci gopacket.CaptureInfo) {
	node, err := Decode(data, ci, s.offset, s.exporter)
	if err != nil {
		s.decodeErrs.Skipped++
		s.log.Debug("skipped undecodable packet", "error", err)
	} else {
		s.nodes.Push(node)
	}

	if s.ring != nil {
		s.ring.Append(ci, data)
	}
}

func (s *Stage) onIdleTick(t time.Time) {
	if !s.windowSet {
		s.window = rotation.For(t, s.windowInterval)
		s.windowSet = true
		return
	}
	if s.window.Elapsed(t) {
		s.rotate(t)
	}
}

func (s *Stage) rotate(at time.Time) {
	s.nodes.Push(flowtree.SignalNode(at))
	if s.ring != nil {
		s.ring.RequestRotate(s.window.Start)
	}
	s.window = s.window.Next()
}
