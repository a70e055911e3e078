// Package api implements the gateway's REST API.
//
// Routes:
//
//	GET /api/v1/records   — recent output records (?limit=N)
//	GET /api/v1/nodes     — node registry
//	GET /api/v1/nodes/{id} — single node detail
//	GET /api/v1/status    — gateway health and receive statistics
//	GET /api/v1/events    — WebSocket live stream
//	GET /metrics          — Prometheus exposition
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/bus"
	"github.com/fieldgate/fieldgate/internal/metrics"
	"github.com/fieldgate/fieldgate/internal/pipeline"
	"github.com/fieldgate/fieldgate/internal/state"
	"github.com/fieldgate/fieldgate/internal/store"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server holds handler dependencies.
type Server struct {
	db         *store.DB
	registry   *state.Manager
	stats      *pipeline.Stats
	bus        *bus.Bus
	log        *zap.Logger
	instanceID string
	startedAt  time.Time
}

// NewRouter wires all routes and returns an http.Handler.
func NewRouter(
	db *store.DB,
	registry *state.Manager,
	stats *pipeline.Stats,
	b *bus.Bus,
	instanceID string,
	log *zap.Logger,
) http.Handler {
	s := &Server{
		db:         db,
		registry:   registry,
		stats:      stats,
		bus:        b,
		log:        log,
		instanceID: instanceID,
		startedAt:  time.Now().UTC(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/records", s.listRecords)
	mux.HandleFunc("GET /api/v1/nodes", s.listNodes)
	mux.HandleFunc("GET /api/v1/nodes/{id}", s.getNode)
	mux.HandleFunc("GET /api/v1/status", s.status)

	// WebSocket event stream
	mux.HandleFunc("GET /api/v1/events", s.eventStream)

	// Prometheus exposition
	mux.Handle("GET /metrics", promhttp.Handler())

	return withLogging(log, mux)
}

// ── Records ───────────────────────────────────────────────────────────────

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50, 1, 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs, err := s.db.ListRecords(limit)
	if err != nil {
		s.log.Error("api: list records", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// ── Nodes ─────────────────────────────────────────────────────────────────

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.registry.ListNodes()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": nodes,
		"count": len(nodes),
	})
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	// Accept both the wire ID ("5") and the record form ("node-5").
	idStr := strings.TrimPrefix(r.PathValue("id"), "node-")
	id, err := strconv.ParseUint(idStr, 10, 8)
	if err != nil {
		http.Error(w, "invalid node id", http.StatusBadRequest)
		return
	}

	node, ok := s.registry.GetNode(uint8(id))
	if !ok {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// ── Status ────────────────────────────────────────────────────────────────

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	total, err := s.db.CountRecords()
	if err != nil {
		s.log.Error("api: count records", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"instance_id":    s.instanceID,
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"node_count":     s.registry.NodeCount(),
		"record_count":   total,
		"subscribers":    s.bus.Len(),
		"receive":        s.stats.Snapshot(),
	})
}

// ── WebSocket event stream ────────────────────────────────────────────────

func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("api: ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, unsub := s.bus.Subscribe()
	defer unsub()

	metrics.WSSubscribers.Inc()
	defer metrics.WSSubscribers.Dec()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				s.log.Debug("api: ws write", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// ── Middleware ────────────────────────────────────────────────────────────

func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("api",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.code),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	code int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.code = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so the WebSocket upgrade
// works behind the logging wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("api: response writer does not support hijacking")
	}
	return h.Hijack()
}

// ── helpers ───────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be %d–%d", key, min, max)
	}
	return n, nil
}
