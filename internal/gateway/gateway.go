// Package gateway implements the collector daemon: the radio poll loop,
// the receive pipeline behind it, and the HTTP surface over the results.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/api"
	"github.com/fieldgate/fieldgate/internal/bus"
	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/egress"
	"github.com/fieldgate/fieldgate/internal/metrics"
	"github.com/fieldgate/fieldgate/internal/pipeline"
	"github.com/fieldgate/fieldgate/internal/protocol"
	"github.com/fieldgate/fieldgate/internal/radio"
	"github.com/fieldgate/fieldgate/internal/record"
	"github.com/fieldgate/fieldgate/internal/state"
	"github.com/fieldgate/fieldgate/internal/store"
)

// Gateway is the central application service.
type Gateway struct {
	cfg        *config.Config
	db         *store.DB
	log        *zap.Logger
	radio      radio.Radio
	pipe       *pipeline.Pipeline
	proj       *record.Projector
	registry   *state.Manager
	bus        *bus.Bus
	egress     *egress.Fanout
	server     *http.Server
	instanceID string
}

// New constructs a Gateway without starting it.
func New(
	cfg *config.Config,
	db *store.DB,
	rad radio.Radio,
	registry *state.Manager,
	sinks *egress.Fanout,
	log *zap.Logger,
) *Gateway {
	b := bus.New()
	pipe := pipeline.New(log)
	instanceID := uuid.NewString()

	var clock record.Clock = record.SystemClock()
	if !cfg.Gateway.WallClock {
		clock = record.UnsyncedClock()
	}
	proj := record.NewProjector(cfg.Gateway.ID, cfg.Gateway.PresenceThresholdCm, clock)

	router := api.NewRouter(db, registry, pipe.Stats(), b, instanceID, log)
	srv := &http.Server{
		Addr:              cfg.Gateway.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Gateway{
		cfg:        cfg,
		db:         db,
		log:        log,
		radio:      rad,
		pipe:       pipe,
		proj:       proj,
		registry:   registry,
		bus:        b,
		egress:     sinks,
		server:     srv,
		instanceID: instanceID,
	}
}

// Start launches all subsystems and blocks until ctx is cancelled. A radio
// init failure is returned immediately: it poisons every later cycle, and
// whether to halt the process is the caller's decision.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.radio.Configure(radio.ParamsFromConfig(g.cfg.Radio)); err != nil {
		return fmt.Errorf("gateway: radio init: %w", err)
	}
	if err := g.radio.StartReceive(); err != nil {
		return fmt.Errorf("gateway: radio receive: %w", err)
	}
	g.log.Info("radio listening",
		zap.String("driver", g.cfg.Radio.Driver),
		zap.Float64("frequency_mhz", g.cfg.Radio.FrequencyMHz),
		zap.Int("spreading_factor", g.cfg.Radio.SpreadingFactor),
	)

	go g.pollLoop(ctx)

	ln, err := net.Listen("tcp", g.cfg.Gateway.ListenAddr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.cfg.Gateway.ListenAddr, err)
	}
	g.log.Info("HTTP gateway listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("instance_id", g.instanceID),
	)

	// Serve HTTP in background; shut down on ctx cancel.
	srvErr := make(chan error, 1)
	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		g.log.Info("context cancelled – shutting down gateway")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return g.server.Shutdown(shutCtx)
	case err := <-srvErr:
		return err
	}
}

// ── poll loop ─────────────────────────────────────────────────────────────

// pollLoop drains received packets and periodically logs statistics. All
// processing is synchronous: one packet fully handled before the next.
func (g *Gateway) pollLoop(ctx context.Context) {
	poll := time.NewTicker(g.cfg.Gateway.PollInterval.Std())
	defer poll.Stop()
	stats := time.NewTicker(g.cfg.Gateway.StatsInterval.Std())
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logStats()
			return
		case <-poll.C:
			for {
				pkt, ok := g.radio.Poll()
				if !ok {
					break
				}
				g.handlePacket(pkt)
			}
		case <-stats.C:
			g.logStats()
		}
	}
}

// handlePacket runs one received buffer through the pipeline and fans the
// result out. Every failure is local: counted, logged at debug, dropped.
func (g *Gateway) handlePacket(pkt radio.Packet) {
	msg, err := g.pipe.Process(pkt.Data)
	if err != nil {
		metrics.PacketsTotal.WithLabelValues(kindLabel(pkt.Data), "invalid").Inc()
		return
	}
	metrics.PacketsTotal.WithLabelValues(msg.Kind().String(), "valid").Inc()

	switch m := msg.(type) {
	case *protocol.SensorData:
		g.handleSensorData(m, pkt)
	case *protocol.Heartbeat:
		g.handleHeartbeat(m)
	case *protocol.Alert:
		g.handleAlert(m)
	}
}

func (g *Gateway) handleSensorData(m *protocol.SensorData, pkt radio.Packet) {
	view, err := g.registry.ObserveSensorData(m)
	if err != nil {
		g.log.Warn("gateway: registry update", zap.Error(err))
	} else {
		g.bus.PublishNodeUpdate(view)
	}

	rec := g.proj.Project(m, pkt.RSSI, pkt.SNR)
	if _, err := g.db.InsertRecord(rec); err != nil {
		g.log.Error("gateway: store record", zap.Error(err))
		return
	}
	metrics.RecordsStoredTotal.Inc()

	g.bus.PublishRecord(rec)
	g.egress.Emit(rec)

	g.log.Debug("record stored",
		zap.String("node", rec.NodeID),
		zap.Float32("humidity_pct", rec.Sensors.HumidityPercent),
		zap.Uint16("distance_cm", rec.Sensors.DistanceCm),
		zap.Bool("presence", rec.Sensors.PresenceDetected),
		zap.Float32("rssi_dbm", pkt.RSSI),
		zap.Float32("snr_db", pkt.SNR),
	)
}

func (g *Gateway) handleHeartbeat(m *protocol.Heartbeat) {
	view, err := g.registry.ObserveHeartbeat(m)
	if err != nil {
		g.log.Warn("gateway: registry update", zap.Error(err))
		return
	}
	g.bus.PublishHeartbeat(view)
	g.log.Info("heartbeat",
		zap.Uint8("node", m.NodeID),
		zap.Uint32("uptime_ms", m.TimestampMs),
		zap.Uint8("status_flags", m.Status),
	)
}

func (g *Gateway) handleAlert(m *protocol.Alert) {
	view, err := g.registry.ObserveAlert(m)
	if err != nil {
		g.log.Warn("gateway: registry update", zap.Error(err))
		return
	}
	g.bus.PublishAlert(view)
	g.log.Warn("alert received",
		zap.Uint8("node", m.NodeID),
		zap.Uint8("code", m.Code),
		zap.Int16("value", m.Value),
		zap.Uint8("severity", m.Severity),
	)
}

func (g *Gateway) logStats() {
	snap := g.pipe.Stats().Snapshot()
	fields := []zap.Field{
		zap.Uint64("seen", snap.Seen),
		zap.Uint64("valid", snap.Valid),
		zap.Uint64("invalid", snap.Invalid),
		zap.Float64("success_rate", snap.SuccessRate()),
	}
	if !snap.LastValid.IsZero() {
		fields = append(fields, zap.Duration("since_last_valid", time.Since(snap.LastValid)))
	}
	g.log.Info("receive stats", fields...)
}

// kindLabel keeps the metrics label space bounded: unknown tags collapse
// into one value instead of minting a label per byte.
func kindLabel(buf []byte) string {
	if len(buf) == 0 {
		return "empty"
	}
	switch t := protocol.Type(buf[0]); t {
	case protocol.TypeSensorData, protocol.TypeHeartbeat, protocol.TypeAlert:
		return t.String()
	default:
		return "unknown"
	}
}
