package flowtree

import "time"

// ExporterStat accumulates per-flow-source tallies within one output window.
type ExporterStat struct {
	Flows   uint64
	Packets uint64
	Bytes   uint64
}

// StatRecord accumulates per-output-window statistics. It is reset at every
// rotation once its contents have been handed to the nffile writer.
type StatRecord struct {
	Flows   uint64
	Packets uint64
	Bytes   uint64

	FirstSeen time.Time
	LastSeen  time.Time

	// Lost tallies packets/bytes dropped due to LRU eviction under cache
	// pressure (see DESIGN.md Open Question 2), never silently discarded.
	LostPackets uint64
	LostBytes   uint64

	Exporters map[string]*ExporterStat
}

// NewStatRecord returns a zeroed StatRecord ready to accumulate a window.
func NewStatRecord() *StatRecord {
	return &StatRecord{Exporters: make(map[string]*ExporterStat)}
}

// Observe folds an emitted node's counters into the record.
func (s *StatRecord) Observe(n *Node) {
	s.Flows++
	s.Packets += n.Packets
	s.Bytes += n.Bytes
	if s.FirstSeen.IsZero() || n.FirstSeen.Before(s.FirstSeen) {
		s.FirstSeen = n.FirstSeen
	}
	if n.LastSeen.After(s.LastSeen) {
		s.LastSeen = n.LastSeen
	}

	exp := s.Exporters[n.Exporter]
	if exp == nil {
		exp = &ExporterStat{}
		s.Exporters[n.Exporter] = exp
	}
	exp.Flows++
	exp.Packets += n.Packets
	exp.Bytes += n.Bytes
}

// ObserveLoss records an evicted-under-pressure node's counters as lost.
func (s *StatRecord) ObserveLoss(n *Node) {
	s.LostPackets += n.Packets
	s.LostBytes += n.Bytes
}

// Reset clears the record for the next window, preserving the allocated
// exporter map (cleared rather than reallocated).
func (s *StatRecord) Reset() {
	s.Flows, s.Packets, s.Bytes = 0, 0, 0
	s.LostPackets, s.LostBytes = 0, 0
	s.FirstSeen, s.LastSeen = time.Time{}, time.Time{}
	for k := range s.Exporters {
		delete(s.Exporters, k)
	}
}

// SynthesizeWindow fills FirstSeen/LastSeen from the window bounds when no
// data was collected during a rotation (spec §4.2 step 5).
func (s *StatRecord) SynthesizeWindow(start, end time.Time) {
	if s.Flows == 0 {
		s.FirstSeen = start
		s.LastSeen = end
	}
}
