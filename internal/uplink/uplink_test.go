package uplink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/record"
	"github.com/fieldgate/fieldgate/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "uplink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(db))
	return db
}

func insertRecord(t *testing.T, db *store.DB, nodeID string) int64 {
	t.Helper()
	id, err := db.InsertRecord(&record.Record{
		NodeID:            nodeID,
		GatewayID:         "gateway-1",
		GatewayTimestamp:  "2026-08-25T12:00:00.000Z",
		ClientTimestampMs: 1000,
		Sensors:           record.Sensors{HumidityPercent: 58.3, DistanceCm: 90, PresenceDetected: true},
		BatteryPercent:    97,
		Radio:             record.Link{RSSIDBm: -71.5, SNRDb: 8.25},
	})
	require.NoError(t, err)
	return id
}

func testConfig(url string) config.UplinkConfig {
	return config.UplinkConfig{
		Enabled:   true,
		URL:       url,
		Interval:  config.Duration(time.Second),
		BatchSize: 10,
		Timeout:   config.Duration(2 * time.Second),
	}
}

func TestSweepPushesAndMarks(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	db := openTestDB(t)
	insertRecord(t, db, "node-1")
	insertRecord(t, db, "node-2")

	m := New(testConfig(srv.URL), db, zap.NewNop())
	m.Sweep(context.Background())

	require.Len(t, bodies, 2)
	assert.Equal(t, "node-1", bodies[0]["node_id"], "oldest record first")
	assert.Contains(t, bodies[0], "sensors")

	pending, err := db.UnuplinkedRecords(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweepLeavesRecordsPendingOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := openTestDB(t)
	insertRecord(t, db, "node-1")

	m := New(testConfig(srv.URL), db, zap.NewNop())
	m.Sweep(context.Background())

	pending, err := db.UnuplinkedRecords(10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "failed push must stay pending")
}

// A mid-batch failure keeps the successfully pushed prefix marked and
// leaves the rest for the next sweep.
func TestSweepStopsAtFirstFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := openTestDB(t)
	insertRecord(t, db, "node-1")
	insertRecord(t, db, "node-2")
	insertRecord(t, db, "node-3")

	m := New(testConfig(srv.URL), db, zap.NewNop())
	m.Sweep(context.Background())

	assert.Equal(t, 2, calls, "sweep stops after the first failure")
	pending, err := db.UnuplinkedRecords(10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSweepUnreachableUpstream(t *testing.T) {
	db := openTestDB(t)
	insertRecord(t, db, "node-1")

	m := New(testConfig("http://127.0.0.1:1/data"), db, zap.NewNop())
	m.Sweep(context.Background())

	pending, err := db.UnuplinkedRecords(10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
