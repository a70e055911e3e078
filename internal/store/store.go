// Package store manages the gateway's SQLite database (WAL mode).
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/fieldgate/fieldgate/internal/record"
)

// DB wraps *sql.DB with domain helpers.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the SQLite file at path with WAL journal mode.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// Limit writer concurrency to 1; SQLite WAL allows concurrent readers.
	raw.SetMaxOpenConns(1)
	return &DB{raw}, nil
}

// Migrate applies the embedded DDL schema to the database.
// It is idempotent (IF NOT EXISTS everywhere).
func Migrate(db *DB) error {
	ddl := []string{
		ddlRecords,
		ddlNodes,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// ── DDL statements ────────────────────────────────────────────────────────

const ddlRecords = `
CREATE TABLE IF NOT EXISTS records (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    node_id       TEXT    NOT NULL,
    gateway_id    TEXT    NOT NULL,
    gateway_ts    TEXT    NOT NULL,
    client_ts_ms  INTEGER NOT NULL,
    humidity      REAL    NOT NULL,
    distance_cm   INTEGER NOT NULL,
    presence      INTEGER NOT NULL DEFAULT 0,
    battery       INTEGER NOT NULL,
    rssi          REAL    NOT NULL,
    snr           REAL    NOT NULL,
    received_at   INTEGER NOT NULL,          -- Unix milliseconds
    uplinked      INTEGER NOT NULL DEFAULT 0 -- bool: 0 = pending, 1 = pushed
);
CREATE INDEX IF NOT EXISTS idx_records_received_at ON records (received_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_uplinked ON records (uplinked, id);
`

const ddlNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    node_id         INTEGER PRIMARY KEY,     -- wire node ID (1-255)
    last_seen       INTEGER NOT NULL,        -- Unix milliseconds
    battery         INTEGER NOT NULL DEFAULT 0,
    status_flags    INTEGER NOT NULL DEFAULT 0,
    last_alert_code INTEGER NOT NULL DEFAULT 0,
    last_alert_at   INTEGER NOT NULL DEFAULT 0,
    packets         INTEGER NOT NULL DEFAULT 0
);
`

// ── records ───────────────────────────────────────────────────────────────

// StoredRecord is a persisted output record plus its storage metadata.
type StoredRecord struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Uplinked   bool      `json:"uplinked"`
	record.Record
}

// InsertRecord persists one output record and returns its row ID.
func (db *DB) InsertRecord(rec *record.Record) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO records (node_id, gateway_id, gateway_ts, client_ts_ms,
		                     humidity, distance_cm, presence, battery,
		                     rssi, snr, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.NodeID, rec.GatewayID, rec.GatewayTimestamp, rec.ClientTimestampMs,
		rec.Sensors.HumidityPercent, rec.Sensors.DistanceCm, rec.Sensors.PresenceDetected,
		rec.BatteryPercent, rec.Radio.RSSIDBm, rec.Radio.SNRDb,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert record: %w", err)
	}
	return res.LastInsertId()
}

// ListRecords returns the limit most recent records, newest first.
func (db *DB) ListRecords(limit int) ([]*StoredRecord, error) {
	rows, err := db.Query(`
		SELECT id, node_id, gateway_id, gateway_ts, client_ts_ms,
		       humidity, distance_cm, presence, battery, rssi, snr,
		       received_at, uplinked
		FROM records ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// UnuplinkedRecords returns up to limit records not yet pushed upstream,
// oldest first so the upstream sees them in arrival order.
func (db *DB) UnuplinkedRecords(limit int) ([]*StoredRecord, error) {
	rows, err := db.Query(`
		SELECT id, node_id, gateway_id, gateway_ts, client_ts_ms,
		       humidity, distance_cm, presence, battery, rssi, snr,
		       received_at, uplinked
		FROM records WHERE uplinked = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list pending records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MarkUplinked flags the given records as pushed.
func (db *DB) MarkUplinked(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	ph := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		ph[i] = "?"
	}
	_, err := db.Exec(
		fmt.Sprintf("UPDATE records SET uplinked = 1 WHERE id IN (%s)", strings.Join(ph, ",")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("store: mark uplinked: %w", err)
	}
	return nil
}

// CountRecords returns the total number of stored records.
func (db *DB) CountRecords() (int64, error) {
	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count records: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]*StoredRecord, error) {
	var out []*StoredRecord
	for rows.Next() {
		var (
			r          StoredRecord
			receivedAt int64
		)
		if err := rows.Scan(
			&r.ID, &r.NodeID, &r.GatewayID, &r.GatewayTimestamp, &r.ClientTimestampMs,
			&r.Sensors.HumidityPercent, &r.Sensors.DistanceCm, &r.Sensors.PresenceDetected,
			&r.BatteryPercent, &r.Radio.RSSIDBm, &r.Radio.SNRDb,
			&receivedAt, &r.Uplinked,
		); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		r.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ── nodes ─────────────────────────────────────────────────────────────────

// NodeRow is the persisted per-node registry state.
type NodeRow struct {
	NodeID        uint8
	LastSeen      time.Time
	Battery       uint8
	StatusFlags   uint8
	LastAlertCode uint8
	LastAlertAt   time.Time
	Packets       uint64
}

// UpsertNode creates or refreshes one node row.
func (db *DB) UpsertNode(n *NodeRow) error {
	var alertAt int64
	if !n.LastAlertAt.IsZero() {
		alertAt = n.LastAlertAt.UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO nodes (node_id, last_seen, battery, status_flags,
		                   last_alert_code, last_alert_at, packets)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE
		  SET last_seen       = excluded.last_seen,
		      battery         = excluded.battery,
		      status_flags    = excluded.status_flags,
		      last_alert_code = excluded.last_alert_code,
		      last_alert_at   = excluded.last_alert_at,
		      packets         = excluded.packets`,
		n.NodeID, n.LastSeen.UnixMilli(), n.Battery, n.StatusFlags,
		n.LastAlertCode, alertAt, n.Packets,
	)
	if err != nil {
		return fmt.Errorf("store: upsert node %d: %w", n.NodeID, err)
	}
	return nil
}

// ListNodes returns all persisted node rows.
func (db *DB) ListNodes() ([]*NodeRow, error) {
	rows, err := db.Query(`
		SELECT node_id, last_seen, battery, status_flags,
		       last_alert_code, last_alert_at, packets
		FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("store: list nodes: %w", err)
	}
	defer rows.Close()

	var out []*NodeRow
	for rows.Next() {
		var (
			n        NodeRow
			lastSeen int64
			alertAt  int64
		)
		if err := rows.Scan(&n.NodeID, &lastSeen, &n.Battery, &n.StatusFlags,
			&n.LastAlertCode, &alertAt, &n.Packets); err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		n.LastSeen = time.UnixMilli(lastSeen).UTC()
		if alertAt != 0 {
			n.LastAlertAt = time.UnixMilli(alertAt).UTC()
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
