// Package pcapflush implements the pcap-flush stage: drains the capture
// stage's ring buffer and writes it to the dual-output pcap file, rotating
// alongside the flow stage on the same window grid (spec §4.3).
package pcapflush

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/nfpcapd-go/nfpcapd/internal/logging"
	"github.com/nfpcapd-go/nfpcapd/internal/pcapio"
	"github.com/nfpcapd-go/nfpcapd/internal/rotation"
)

// Stage is the pcap-flush stage.
type Stage struct {
	ring *pcapio.RingFile

	dir            string
	subdirIndex    int
	linkType       layers.LinkType
	snaplen        int
	windowInterval time.Duration

	f *os.File
	w pcapio.PacketWriter

	done atomic.Bool
	log  *logging.L
}

// Option configures a Stage at construction time.
type Option func(*Stage)

// WithLogger attaches a logger; defaults to logging.Logger().
func WithLogger(l *logging.L) Option {
	return func(s *Stage) { s.log = l }
}

// New constructs a pcap-flush Stage writing to dir. windowInterval must
// match the flow stage's rotation window so both outputs share the same
// strftime/subdir rules (spec §4.3 step 5, §4.2 step 2).
func New(ring *pcapio.RingFile, dir string, subdirIndex int, linkType layers.LinkType, snaplen int, windowInterval time.Duration, opts ...Option) *Stage {
	s := &Stage{
		ring:           ring,
		dir:            dir,
		subdirIndex:    subdirIndex,
		linkType:       linkType,
		snaplen:        snaplen,
		windowInterval: windowInterval,
		log:            logging.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Done reports whether the stage has drained and exited.
func (s *Stage) Done() bool { return s.done.Load() }

// Run drains the ring buffer until the capture stage closes it, writing
// staged records to the current pcap file and rotating on request (spec
// §4.3 "Main loop").
func (s *Stage) Run() error {
	defer s.done.Store(true)

	if err := s.openCurrent(); err != nil {
		return fmt.Errorf("open initial pcap file: %w", err)
	}

	for {
		staged, rotateAt, haveRotate, done := s.ring.WaitForWork()

		for _, rec := range staged {
			if err := s.w.WritePacket(rec.CI, rec.Data); err != nil {
				s.log.Error("failed to write pcap record", "error", err)
			}
		}

		if haveRotate {
			if err := s.rotate(rotateAt); err != nil {
				s.log.Error("pcap rotation failed", "error", err)
			}
		}

		if done {
			return s.finalClose()
		}
	}
}

func (s *Stage) openCurrent() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	f, w, err := pcapio.OpenNew(pcapio.CurrentName(s.dir), s.linkType, s.snaplen)
	if err != nil {
		return err
	}
	s.f = f
	s.w = w
	return nil
}

func (s *Stage) rotate(windowStart time.Time) error {
	if err := s.f.Close(); err != nil {
		s.log.Error("failed to close pcap file", "error", err)
	}

	final := filepath.Join(s.subdir(windowStart), "pcapd."+windowStart.UTC().Format(rotation.TimeFormat(s.windowInterval)))
	if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
		s.log.Error("could not create rotation subdirectory, keeping file in base dir", "error", err)
		final = filepath.Join(s.dir, filepath.Base(final))
	}
	if err := pcapio.RenameAtomic(pcapio.CurrentName(s.dir), final); err != nil {
		s.log.Error("rename pcap file failed, data for this window is lost", "error", err)
	}

	return s.openCurrent()
}

func (s *Stage) finalClose() error {
	return s.f.Close()
}

// subdir computes the output subdirectory for a window start, mirroring
// the flow stage's layout convention.
func (s *Stage) subdir(t time.Time) string {
	if s.subdirIndex <= 0 {
		return s.dir
	}
	return filepath.Join(s.dir, t.UTC().Format("2006/01/02"))
}
