// Package metrics exposes pipeline counters/gauges via prometheus,
// grounded on the teacher's WithMetrics server option
// (pkg/api/server/server.go).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the prometheus collectors registered for one running
// daemon instance.
type Metrics struct {
	PacketsCaptured prometheus.Counter
	PacketsDropped  prometheus.Counter
	FlowsActive     prometheus.Gauge
	FlowsEvicted    prometheus.Counter
	Rotations       prometheus.Counter
	NodeListLength  prometheus.Gauge
}

// New constructs and registers a Metrics bundle on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		PacketsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_captured_total",
			Help: "Total number of packets pulled from the capture source.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_dropped_total",
			Help: "Total number of packets dropped by the capture source (kernel/driver reported).",
		}),
		FlowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "flows_active",
			Help: "Number of live flow entries currently held in the flow tree.",
		}),
		FlowsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "flows_evicted_total",
			Help: "Total number of flows evicted from the flow tree under cache pressure.",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rotations_total",
			Help: "Total number of output rotations performed.",
		}),
		NodeListLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "nodelist_length",
			Help: "Current length of the capture-to-flow node list.",
		}),
	}

	reg.MustRegister(
		m.PacketsCaptured, m.PacketsDropped, m.FlowsActive,
		m.FlowsEvicted, m.Rotations, m.NodeListLength,
	)
	return m
}
