package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/internal/record"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "fieldgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func sampleRecord(nodeID string) *record.Record {
	return &record.Record{
		NodeID:            nodeID,
		GatewayID:         "gateway-1",
		GatewayTimestamp:  "2026-08-25T12:00:00.000Z",
		ClientTimestampMs: 1000,
		Sensors: record.Sensors{
			HumidityPercent:  58.3,
			DistanceCm:       90,
			PresenceDetected: true,
		},
		BatteryPercent: 97,
		Radio:          record.Link{RSSIDBm: -71.5, SNRDb: 8.25},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))
}

func TestInsertAndListRecords(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.InsertRecord(sampleRecord("node-1"))
	require.NoError(t, err)
	id2, err := db.InsertRecord(sampleRecord("node-2"))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	recs, err := db.ListRecords(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "node-2", recs[0].NodeID)
	got := recs[1]
	assert.Equal(t, "node-1", got.NodeID)
	assert.Equal(t, "2026-08-25T12:00:00.000Z", got.GatewayTimestamp)
	assert.Equal(t, uint32(1000), got.ClientTimestampMs)
	assert.InDelta(t, 58.3, got.Sensors.HumidityPercent, 0.001)
	assert.Equal(t, uint16(90), got.Sensors.DistanceCm)
	assert.True(t, got.Sensors.PresenceDetected)
	assert.Equal(t, uint8(97), got.BatteryPercent)
	assert.InDelta(t, -71.5, got.Radio.RSSIDBm, 0.001)
	assert.False(t, got.ReceivedAt.IsZero())
	assert.False(t, got.Uplinked)

	n, err := db.CountRecords()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestListRecordsHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		_, err := db.InsertRecord(sampleRecord("node-1"))
		require.NoError(t, err)
	}
	recs, err := db.ListRecords(3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestUplinkBookkeeping(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.InsertRecord(sampleRecord("node-1"))
	require.NoError(t, err)
	_, err = db.InsertRecord(sampleRecord("node-1"))
	require.NoError(t, err)

	pending, err := db.UnuplinkedRecords(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID, "oldest first")

	require.NoError(t, db.MarkUplinked([]int64{id1}))

	pending, err = db.UnuplinkedRecords(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, id1, pending[0].ID)

	require.NoError(t, db.MarkUplinked(nil), "empty set is a no-op")
}

func TestUpsertNode(t *testing.T) {
	db := openTestDB(t)

	seen := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertNode(&NodeRow{
		NodeID:   7,
		LastSeen: seen,
		Battery:  80,
		Packets:  1,
	}))
	require.NoError(t, db.UpsertNode(&NodeRow{
		NodeID:        7,
		LastSeen:      seen.Add(time.Minute),
		Battery:       79,
		StatusFlags:   0x01,
		LastAlertCode: 0x30,
		LastAlertAt:   seen.Add(30 * time.Second),
		Packets:       2,
	}))

	nodes, err := db.ListNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	n := nodes[0]
	assert.Equal(t, uint8(7), n.NodeID)
	assert.Equal(t, seen.Add(time.Minute), n.LastSeen)
	assert.Equal(t, uint8(79), n.Battery)
	assert.Equal(t, uint8(0x01), n.StatusFlags)
	assert.Equal(t, uint8(0x30), n.LastAlertCode)
	assert.Equal(t, uint64(2), n.Packets)
}
