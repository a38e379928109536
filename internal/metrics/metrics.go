// Package metrics holds the counters and gauges a node reports.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Node is the set of instruments updated by a replica.
type Node struct {
	Requests      metrics.Counter
	SyncsReceived metrics.Counter
	SyncsSent     metrics.Counter
	SyncFailures  metrics.Counter
	Entries       metrics.Gauge
}

// NewDiscard returns instruments that record nothing.
func NewDiscard() *Node {
	return &Node{
		Requests:      discard.NewCounter(),
		SyncsReceived: discard.NewCounter(),
		SyncsSent:     discard.NewCounter(),
		SyncFailures:  discard.NewCounter(),
		Entries:       discard.NewGauge(),
	}
}

// NewPrometheus registers the instruments with reg.
func NewPrometheus(reg prom.Registerer) *Node {
	counter := func(name, help string, labels ...string) *prometheus.Counter {
		cv := prom.NewCounterVec(prom.CounterOpts{
			Namespace: "causalkv",
			Subsystem: "node",
			Name:      name,
			Help:      help,
		}, labels)
		reg.MustRegister(cv)
		return prometheus.NewCounter(cv)
	}

	gv := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "causalkv",
		Subsystem: "node",
		Name:      "entries",
		Help:      "Number of keys in the resolved snapshot.",
	}, nil)
	reg.MustRegister(gv)

	return &Node{
		Requests:      counter("requests_total", "Client requests handled.", "op"),
		SyncsReceived: counter("syncs_received_total", "Sync messages applied.", "kind"),
		SyncsSent:     counter("syncs_sent_total", "Sync messages delivered to peers.", "kind"),
		SyncFailures:  counter("sync_failures_total", "Failed sync delivery attempts."),
		Entries:       prometheus.NewGauge(gv),
	}
}

// New returns Prometheus instruments registered with reg, or discarding
// ones when enabled is false.
func New(enabled bool, reg prom.Registerer) *Node {
	if !enabled || reg == nil {
		return NewDiscard()
	}
	return NewPrometheus(reg)
}
