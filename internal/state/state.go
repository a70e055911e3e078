// Package state keeps the gateway's node registry: one entry per field
// node, hot in memory and persisted via the store package.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/fieldgate/fieldgate/internal/protocol"
	"github.com/fieldgate/fieldgate/internal/store"
)

// Node is the registry view of one field device.
type Node struct {
	ID            uint8     `json:"id"`
	Name          string    `json:"node_id"` // "node-<id>", matching records
	LastSeen      time.Time `json:"last_seen"`
	Battery       uint8     `json:"battery_percent"`
	StatusFlags   uint8     `json:"status_flags"`
	LastHumidity  float32   `json:"last_humidity_percent"`
	LastDistance  uint16    `json:"last_distance_cm"`
	LastAlertCode uint8     `json:"last_alert_code,omitempty"`
	LastAlertAt   time.Time `json:"last_alert_at,omitempty"`
	Packets       uint64    `json:"packets"`
}

// Manager holds the registry. The poll loop is the only writer; reads come
// from the REST layer, hence the lock. Hydration from SQLite at startup
// lets the registry survive gateway restarts.
type Manager struct {
	db    *store.DB
	mu    sync.RWMutex
	nodes map[uint8]*Node
}

// New creates a Manager and hydrates the node cache from the database.
func New(db *store.DB) (*Manager, error) {
	m := &Manager{
		db:    db,
		nodes: make(map[uint8]*Node),
	}
	if err := m.loadNodes(); err != nil {
		return nil, fmt.Errorf("state: load nodes: %w", err)
	}
	return m, nil
}

// ── message observations ──────────────────────────────────────────────────

// ObserveSensorData refreshes a node from a validated measurement frame.
// Returns the updated registry view (a copy) for event publication.
func (m *Manager) ObserveSensorData(msg *protocol.SensorData) (*Node, error) {
	m.mu.Lock()
	n := m.node(msg.NodeID)
	n.LastSeen = time.Now().UTC()
	n.Battery = msg.Battery
	n.LastHumidity = msg.HumidityPct()
	n.LastDistance = msg.Distance
	n.Packets++
	view := *n
	m.mu.Unlock()

	return &view, m.persist(&view)
}

// ObserveHeartbeat refreshes a node's liveness and status flags.
func (m *Manager) ObserveHeartbeat(msg *protocol.Heartbeat) (*Node, error) {
	m.mu.Lock()
	n := m.node(msg.NodeID)
	n.LastSeen = time.Now().UTC()
	n.StatusFlags = msg.Status
	n.Packets++
	view := *n
	m.mu.Unlock()

	return &view, m.persist(&view)
}

// ObserveAlert records a node's latest alert.
func (m *Manager) ObserveAlert(msg *protocol.Alert) (*Node, error) {
	m.mu.Lock()
	n := m.node(msg.NodeID)
	n.LastSeen = time.Now().UTC()
	n.LastAlertCode = msg.Code
	n.LastAlertAt = time.Now().UTC()
	n.Packets++
	view := *n
	m.mu.Unlock()

	return &view, m.persist(&view)
}

// ── queries ───────────────────────────────────────────────────────────────

// GetNode retrieves a node by wire ID.
func (m *Manager) GetNode(id uint8) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, false
	}
	view := *n
	return &view, true
}

// ListNodes returns a snapshot of all known nodes.
func (m *Manager) ListNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		view := *n
		out = append(out, &view)
	}
	return out
}

// NodeCount returns how many nodes are currently known.
func (m *Manager) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// ── internal ──────────────────────────────────────────────────────────────

// node returns the entry for id, creating it on first contact. Caller
// holds the write lock.
func (m *Manager) node(id uint8) *Node {
	n, ok := m.nodes[id]
	if !ok {
		n = &Node{ID: id, Name: fmt.Sprintf("node-%d", id)}
		m.nodes[id] = n
	}
	return n
}

func (m *Manager) persist(n *Node) error {
	err := m.db.UpsertNode(&store.NodeRow{
		NodeID:        n.ID,
		LastSeen:      n.LastSeen,
		Battery:       n.Battery,
		StatusFlags:   n.StatusFlags,
		LastAlertCode: n.LastAlertCode,
		LastAlertAt:   n.LastAlertAt,
		Packets:       n.Packets,
	})
	if err != nil {
		return fmt.Errorf("state: persist node %d: %w", n.ID, err)
	}
	return nil
}

func (m *Manager) loadNodes() error {
	rows, err := m.db.ListNodes()
	if err != nil {
		return err
	}
	for _, r := range rows {
		m.nodes[r.NodeID] = &Node{
			ID:            r.NodeID,
			Name:          fmt.Sprintf("node-%d", r.NodeID),
			LastSeen:      r.LastSeen,
			Battery:       r.Battery,
			StatusFlags:   r.StatusFlags,
			LastAlertCode: r.LastAlertCode,
			LastAlertAt:   r.LastAlertAt,
			Packets:       r.Packets,
		}
	}
	return nil
}
