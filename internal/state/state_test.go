package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/internal/protocol"
	"github.com/fieldgate/fieldgate/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(db))
	return db
}

func TestObserveSensorDataCreatesNode(t *testing.T) {
	m, err := New(openTestDB(t))
	require.NoError(t, err)
	assert.Equal(t, 0, m.NodeCount())

	view, err := m.ObserveSensorData(&protocol.SensorData{
		NodeID:   5,
		Humidity: 5830,
		Distance: 90,
		Battery:  97,
	})
	require.NoError(t, err)

	assert.Equal(t, "node-5", view.Name)
	assert.InDelta(t, 58.3, view.LastHumidity, 0.01)
	assert.Equal(t, uint16(90), view.LastDistance)
	assert.Equal(t, uint8(97), view.Battery)
	assert.Equal(t, uint64(1), view.Packets)
	assert.Equal(t, 1, m.NodeCount())
}

func TestObserveHeartbeatAndAlert(t *testing.T) {
	m, err := New(openTestDB(t))
	require.NoError(t, err)

	hb, err := m.ObserveHeartbeat(&protocol.Heartbeat{
		NodeID: 3,
		Status: protocol.StatusLowBattery,
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusLowBattery, hb.StatusFlags)

	al, err := m.ObserveAlert(&protocol.Alert{
		NodeID: 3,
		Code:   protocol.AlertDistanceLow,
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.AlertDistanceLow, al.LastAlertCode)
	assert.False(t, al.LastAlertAt.IsZero())
	assert.Equal(t, uint64(2), al.Packets)
}

func TestGetNodeReturnsCopy(t *testing.T) {
	m, err := New(openTestDB(t))
	require.NoError(t, err)

	_, err = m.ObserveSensorData(&protocol.SensorData{NodeID: 1, Battery: 50})
	require.NoError(t, err)

	n, ok := m.GetNode(1)
	require.True(t, ok)
	n.Battery = 0 // mutating the copy must not touch the registry

	again, ok := m.GetNode(1)
	require.True(t, ok)
	assert.Equal(t, uint8(50), again.Battery)

	_, ok = m.GetNode(200)
	assert.False(t, ok)
}

func TestRegistrySurvivesRestart(t *testing.T) {
	db := openTestDB(t)

	m1, err := New(db)
	require.NoError(t, err)
	_, err = m1.ObserveSensorData(&protocol.SensorData{NodeID: 9, Battery: 88})
	require.NoError(t, err)

	// A fresh Manager over the same database sees the node again.
	m2, err := New(db)
	require.NoError(t, err)
	n, ok := m2.GetNode(9)
	require.True(t, ok)
	assert.Equal(t, uint8(88), n.Battery)
	assert.Equal(t, uint64(1), n.Packets)

	nodes := m2.ListNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-9", nodes[0].Name)
}
