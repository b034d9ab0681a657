package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ChangeAdded(1)
		m.ChangeDuplicate()
		m.ChangeRejected()
		m.SetChangeLogSize(3)
		m.ObserveSync(SyncBulk, time.Second, nil)
		m.SetConnectedPeers(2)
		m.Conflict()
		m.Flushed("changes", 1, nil)
		m.ProtocolError()
		m.RPCServed("getRecentChanges")
		m.TrackerConnOpened()
		m.TrackerConnClosed()
		m.FrameRelayed()
		m.FrameDropped()
	})
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ChangeAdded(1)
	m.ChangeAdded(2)
	m.ChangeDuplicate()
	m.ObserveSync(SyncIncremental, 10*time.Millisecond, nil)
	m.ObserveSync(SyncIncremental, 10*time.Millisecond, errors.New("timeout"))
	m.Flushed("rows", 5, nil)
	m.Flushed("rows", 0, errors.New("disk full"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.changesAdded), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.changeLogSize), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.changesDuplicate), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.syncRequests.WithLabelValues(SyncIncremental)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.syncFailures.WithLabelValues(SyncIncremental)), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.flushedRecords.WithLabelValues("rows")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.flushFailures.WithLabelValues("rows")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
