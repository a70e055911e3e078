package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/bus"
	"github.com/fieldgate/fieldgate/internal/pipeline"
	"github.com/fieldgate/fieldgate/internal/protocol"
	"github.com/fieldgate/fieldgate/internal/record"
	"github.com/fieldgate/fieldgate/internal/state"
	"github.com/fieldgate/fieldgate/internal/store"
)

type fixture struct {
	handler  http.Handler
	db       *store.DB
	registry *state.Manager
	pipe     *pipeline.Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(db))

	registry, err := state.New(db)
	require.NoError(t, err)

	pipe := pipeline.New(zap.NewNop())
	handler := NewRouter(db, registry, pipe.Stats(), bus.New(), "test-instance", zap.NewNop())
	return &fixture{handler: handler, db: db, registry: registry, pipe: pipe}
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestListRecords(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.InsertRecord(&record.Record{
		NodeID:           "node-1",
		GatewayID:        "gateway-1",
		GatewayTimestamp: "2026-08-25T12:00:00.000Z",
		Sensors:          record.Sensors{HumidityPercent: 58.3, DistanceCm: 90},
	})
	require.NoError(t, err)

	rec, body := f.get(t, "/api/v1/records")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	records := body["records"].([]any)
	first := records[0].(map[string]any)
	assert.Equal(t, "node-1", first["node_id"])
	assert.Contains(t, first, "sensors")
	assert.Contains(t, first, "received_at")
}

func TestListRecordsLimitValidation(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.get(t, "/api/v1/records?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/v1/records?limit=501")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/v1/records?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.get(t, "/api/v1/records?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNodesEndpoints(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.ObserveSensorData(&protocol.SensorData{NodeID: 5, Battery: 80, Humidity: 5830, Distance: 90})
	require.NoError(t, err)

	rec, body := f.get(t, "/api/v1/nodes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	// Both ID forms resolve.
	for _, path := range []string{"/api/v1/nodes/5", "/api/v1/nodes/node-5"} {
		rec, node := f.get(t, path)
		require.Equalf(t, http.StatusOK, rec.Code, "path %s", path)
		assert.Equal(t, "node-5", node["node_id"])
		assert.Equal(t, float64(80), node["battery_percent"])
	}

	rec, _ = f.get(t, "/api/v1/nodes/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.get(t, "/api/v1/nodes/banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	// Feed one good and one bad frame through the pipeline.
	buf, err := protocol.Encode(&protocol.SensorData{NodeID: 1})
	require.NoError(t, err)
	_, err = f.pipe.Process(buf)
	require.NoError(t, err)
	_, _ = f.pipe.Process([]byte{0x7F})

	rec, body := f.get(t, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-instance", body["instance_id"])
	assert.Equal(t, float64(0), body["subscribers"])

	receive := body["receive"].(map[string]any)
	assert.Equal(t, float64(2), receive["seen"])
	assert.Equal(t, float64(1), receive["invalid"])
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
