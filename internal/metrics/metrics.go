// Package metrics holds the Prometheus collectors served at /metrics.
// Counters are incremented at the service edges; the pure decision and
// codec code stays free of them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts received frames by kind and validation result.
	PacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_packets_total",
		Help: "Received radio frames by message kind and validation result.",
	}, []string{"kind", "result"})

	// RecordsStoredTotal counts output records persisted to SQLite.
	RecordsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_records_stored_total",
		Help: "Output records written to the local store.",
	})

	// EgressPublishedTotal counts records handed to each egress sink.
	EgressPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_egress_published_total",
		Help: "Records successfully handed to an egress sink.",
	}, []string{"sink"})

	// EgressErrorsTotal counts per-sink emit failures.
	EgressErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldgate_egress_errors_total",
		Help: "Failed emit calls per egress sink.",
	}, []string{"sink"})

	// UplinkPushedTotal counts records pushed to the upstream collector.
	UplinkPushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_uplink_pushed_total",
		Help: "Records successfully pushed upstream.",
	})

	// UplinkErrorsTotal counts failed upstream pushes.
	UplinkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldgate_uplink_errors_total",
		Help: "Failed upstream push attempts.",
	})

	// WSSubscribers tracks currently connected WebSocket clients.
	WSSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldgate_ws_subscribers",
		Help: "Currently connected WebSocket event stream clients.",
	})
)
