// Package metrics exposes prometheus collectors for peers and the tracker.
//
// Every method is safe to call on a nil *Metrics, so components can run
// without instrumentation in tests and embedded use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gophmesh"

// Sync kinds used as label values
const (
	SyncBulk        = "bulk"
	SyncIncremental = "incremental"
)

// Metrics holds the peer-side collectors
type Metrics struct {
	changeLogSize     prometheus.Gauge
	changesAdded      prometheus.Counter
	changesDuplicate  prometheus.Counter
	changesRejected   prometheus.Counter
	syncRequests      *prometheus.CounterVec
	syncFailures      *prometheus.CounterVec
	syncLatency       *prometheus.HistogramVec
	connectedPeers    prometheus.Gauge
	conflicts         prometheus.Counter
	flushFailures     *prometheus.CounterVec
	flushedRecords    *prometheus.CounterVec
	protocolErrors    prometheus.Counter
	rpcServed         *prometheus.CounterVec
	trackerConns      prometheus.Gauge
	trackerFrames     prometheus.Counter
	trackerDropFrames prometheus.Counter
}

// New creates collectors and registers them in reg.
// A nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		changeLogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "change_log_size",
			Help:      "Number of changes held in the change log",
		}),
		changesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_added_total",
			Help:      "Changes accepted into the change log",
		}),
		changesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_duplicate_total",
			Help:      "Changes ignored because their hash was already known",
		}),
		changesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_rejected_total",
			Help:      "Remote changes that failed to decode",
		}),
		syncRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_requests_total",
			Help:      "Sync requests sent to peers",
		}, []string{"kind"}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Sync requests that failed",
		}, []string{"kind"}),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Round trip time of sync requests",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"kind"}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_peers",
			Help:      "Peers with an open channel",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Remote changes that superseded a pending local change",
		}),
		flushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Failed durable writes",
		}, []string{"store"}),
		flushedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushed_records_total",
			Help:      "Records written to durable storage",
		}, []string{"store"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Peer channels closed after a protocol violation",
		}),
		rpcServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_served_total",
			Help:      "RPC requests served to peers",
		}, []string{"method"}),
		trackerConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "connections",
			Help:      "Open websocket connections on the tracker",
		}),
		trackerFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "frames_relayed_total",
			Help:      "Binary frames forwarded between peers",
		}),
		trackerDropFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "frames_dropped_total",
			Help:      "Binary frames addressed to unknown peers or full queues",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.changeLogSize,
			m.changesAdded,
			m.changesDuplicate,
			m.changesRejected,
			m.syncRequests,
			m.syncFailures,
			m.syncLatency,
			m.connectedPeers,
			m.conflicts,
			m.flushFailures,
			m.flushedRecords,
			m.protocolErrors,
			m.rpcServed,
			m.trackerConns,
			m.trackerFrames,
			m.trackerDropFrames,
		)
	}

	return m
}

// ChangeAdded records a change accepted by the log
func (m *Metrics) ChangeAdded(logSize int) {
	if m == nil {
		return
	}
	m.changesAdded.Inc()
	m.changeLogSize.Set(float64(logSize))
}

// ChangeDuplicate records a change whose hash was already known
func (m *Metrics) ChangeDuplicate() {
	if m == nil {
		return
	}
	m.changesDuplicate.Inc()
}

// ChangeRejected records an undecodable remote change
func (m *Metrics) ChangeRejected() {
	if m == nil {
		return
	}
	m.changesRejected.Inc()
}

// SetChangeLogSize sets the change log gauge
func (m *Metrics) SetChangeLogSize(n int) {
	if m == nil {
		return
	}
	m.changeLogSize.Set(float64(n))
}

// ObserveSync records one sync round trip
func (m *Metrics) ObserveSync(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.syncRequests.WithLabelValues(kind).Inc()
	m.syncLatency.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.syncFailures.WithLabelValues(kind).Inc()
	}
}

// SetConnectedPeers sets the connected peers gauge
func (m *Metrics) SetConnectedPeers(n int) {
	if m == nil {
		return
	}
	m.connectedPeers.Set(float64(n))
}

// Conflict records a detected conflict
func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// Flushed records the result of a durable write for the named store
func (m *Metrics) Flushed(store string, n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flushFailures.WithLabelValues(store).Inc()
		return
	}
	m.flushedRecords.WithLabelValues(store).Add(float64(n))
}

// ProtocolError records a peer closed for a protocol violation
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// RPCServed records a served request
func (m *Metrics) RPCServed(method string) {
	if m == nil {
		return
	}
	m.rpcServed.WithLabelValues(method).Inc()
}

// TrackerConnOpened increments the tracker connection gauge
func (m *Metrics) TrackerConnOpened() {
	if m == nil {
		return
	}
	m.trackerConns.Inc()
}

// TrackerConnClosed decrements the tracker connection gauge
func (m *Metrics) TrackerConnClosed() {
	if m == nil {
		return
	}
	m.trackerConns.Dec()
}

// FrameRelayed records a forwarded frame
func (m *Metrics) FrameRelayed() {
	if m == nil {
		return
	}
	m.trackerFrames.Inc()
}

// FrameDropped records a frame that could not be delivered
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.trackerDropFrames.Inc()
}
