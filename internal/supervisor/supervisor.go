// Package supervisor wires the capture, flow and pcap-flush stages into a
// single running pipeline and drives its graceful shutdown (spec §4.4,
// §9). It replaces the C original's thread-local SIGUSR2 signal routing
// with context cancellation plus each stage's own atomic done flag.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nfpcapd-go/nfpcapd/internal/api"
	"github.com/nfpcapd-go/nfpcapd/internal/bookkeeper"
	"github.com/nfpcapd-go/nfpcapd/internal/capturestage"
	"github.com/nfpcapd-go/nfpcapd/internal/config"
	"github.com/nfpcapd-go/nfpcapd/internal/flowstage"
	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
	"github.com/nfpcapd-go/nfpcapd/internal/logging"
	"github.com/nfpcapd-go/nfpcapd/internal/nodelist"
	"github.com/nfpcapd-go/nfpcapd/internal/pcapflush"
	"github.com/nfpcapd-go/nfpcapd/internal/pcapio"
)

// Supervisor owns the three pipeline stages and reports aggregate status.
type Supervisor struct {
	cfg *config.Config
	log *logging.L

	dev       capturestage.Device
	nodes     *nodelist.List
	startedAt time.Time

	capture   *capturestage.Stage
	flow      *flowstage.Stage
	pcapFlush *pcapflush.Stage // nil when pcap dual-output is disabled

	mu     sync.Mutex
	runErr error
}

// New constructs a Supervisor from a fully validated Config and an already
// opened capture Device (live or offline; spec §4.1 "Inputs").
func New(cfg *config.Config, dev capturestage.Device, books *bookkeeper.Books) (*Supervisor, error) {
	log := logging.Logger()

	nodes := nodelist.New(0)
	tree := flowtree.New(cfg.Flow.CacheSize, cfg.Flow.Active(), cfg.Flow.Inactive())

	var ring *pcapio.RingFile
	var captureOpts []capturestage.Option
	captureOpts = append(captureOpts, capturestage.WithLogger(log))

	var pf *pcapflush.Stage
	if cfg.Pcap.Dir != "" {
		ring = pcapio.NewRingFile(0)
		captureOpts = append(captureOpts, capturestage.WithPcapRing(ring))
		pf = pcapflush.New(ring, cfg.Pcap.Dir, cfg.Pcap.SubdirIndex, dev.LinkType(), dev.Snaplen(), cfg.Flow.Window(), pcapflush.WithLogger(log))
	}

	capture, err := capturestage.New(dev, nodes, cfg.Flow.Window(), cfg.Ident, captureOpts...)
	if err != nil {
		return nil, fmt.Errorf("construct capture stage: %w", err)
	}

	flow := flowstage.New(tree, nodes, cfg.Flow.Dir, cfg.Flow.SubdirIndex, cfg.Flow.Compression(),
		flowstage.WithBookkeeper(books), flowstage.WithLogger(log))

	return &Supervisor{
		cfg:       cfg,
		log:       log,
		dev:       dev,
		nodes:     nodes,
		capture:   capture,
		flow:      flow,
		pcapFlush: pf,
	}, nil
}

// Run starts all stages and blocks until every stage has finished. The
// capture stage stops when ctx is cancelled or its source reaches EOF or a
// read error; it then closes the node list and pcap ring, which in turn
// drain and stop the flow and pcap-flush stages: leaf-first shutdown
// ordering, capture -> flow -> pcap-flush (spec §4.4).
func (s *Supervisor) Run(ctx context.Context) error {
	s.startedAt = time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.capture.Run(ctx); err != nil {
			errs <- fmt.Errorf("capture stage: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.flow.Run(s.cfg.Flow.Window()); err != nil {
			errs <- fmt.Errorf("flow stage: %w", err)
		}
	}()

	if s.pcapFlush != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.pcapFlush.Run(); err != nil {
				errs <- fmt.Errorf("pcap-flush stage: %w", err)
			}
		}()
	}

	wg.Wait()
	close(errs)

	var firstErr error
	for err := range errs {
		s.log.Error("pipeline stage exited with error", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	s.mu.Lock()
	s.runErr = firstErr
	s.mu.Unlock()
	return firstErr
}

// Status implements api.StatusProvider.
func (s *Supervisor) Status() api.Status {
	stats, _ := s.dev.Stats()
	return api.Status{
		Interface:       s.cfg.Ident,
		StartedAt:       s.startedAt,
		LastRotation:    s.flow.LastRotation(),
		FlowsActive:     s.flow.FlowsActive(),
		FlowsEvicted:    s.flow.Evictions(),
		Rotations:       s.flow.Rotations(),
		NodeListLength:  s.nodes.DumpStat().Length,
		PacketsCaptured: stats.Captured,
		PacketsDropped:  stats.Dropped,
	}
}

var _ api.StatusProvider = (*Supervisor)(nil)
