// Package node runs the sensor node side: a single-threaded cycle loop
// that reads the sensor, decides whether the reading is worth the airtime,
// and drives bounded retry of the actual send.
package node

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/protocol"
	"github.com/fieldgate/fieldgate/internal/radio"
)

// TxStats counts transmit outcomes per process lifetime.
type TxStats struct {
	Cycles  uint64
	Sent    uint64
	Failed  uint64
	Skipped uint64
}

// SuccessRate returns sent/(sent+failed), or 0 before the first attempt.
func (s TxStats) SuccessRate() float64 {
	attempts := s.Sent + s.Failed
	if attempts == 0 {
		return 0
	}
	return float64(s.Sent) / float64(attempts)
}

// Node owns one field device's cycle loop. All state (History, TxStats)
// belongs to that loop alone; nothing here needs locking.
type Node struct {
	cfg     config.NodeConfig
	params  radio.Params
	log     *zap.Logger
	radio   radio.Radio
	sensor  Sensor
	battery BatterySource

	policy  Policy
	history History
	alerter *Alerter
	stats   TxStats
	bootAt  time.Time

	sleep func(time.Duration) // backoff between retry attempts
}

// New wires a Node from its collaborators.
func New(cfg config.NodeConfig, params radio.Params, r radio.Radio, s Sensor, b BatterySource, log *zap.Logger) *Node {
	return &Node{
		cfg:     cfg,
		params:  params,
		log:     log,
		radio:   r,
		sensor:  s,
		battery: b,
		policy: Policy{
			Enabled:           cfg.AdaptiveTransmit,
			HumidityThreshold: cfg.HumidityThreshold,
			DistanceThreshold: cfg.DistanceThreshold,
			HeartbeatEvery:    cfg.HeartbeatEvery,
		},
		alerter: NewAlerter(cfg.Alerts),
		bootAt:  time.Now(),
		sleep:   time.Sleep,
	}
}

// Stats returns a copy of the transmit counters.
func (n *Node) Stats() TxStats { return n.stats }

// Start configures the radio, announces itself with a boot heartbeat, and
// runs the cycle loop until ctx is cancelled. A radio init failure affects
// every later cycle and is returned instead of retried.
func (n *Node) Start(ctx context.Context) error {
	if err := n.radio.Configure(n.params); err != nil {
		return fmt.Errorf("node: radio init: %w", err)
	}
	n.log.Info("node started",
		zap.Uint8("id", n.cfg.ID),
		zap.Bool("adaptive_transmit", n.policy.Enabled),
		zap.Duration("cycle_interval", n.cfg.CycleInterval.Std()),
	)

	n.sendBootHeartbeat()

	ticker := time.NewTicker(n.cfg.CycleInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logStats()
			n.log.Info("node stopped")
			return nil
		case <-ticker.C:
			n.runCycle()
		}
	}
}

// ── cycle ─────────────────────────────────────────────────────────────────

// runCycle is one measure-decide-send pass.
func (n *Node) runCycle() {
	n.history.NextCycle()
	n.stats.Cycles++

	reading := n.sensor.Read()

	for _, alert := range n.alerter.Evaluate(n.cfg.ID, n.uptimeMs(), reading) {
		if n.sendWithRetry(alert) {
			n.log.Warn("alert transmitted",
				zap.Uint8("code", alert.Code),
				zap.Int16("value", alert.Value),
				zap.Uint8("severity", alert.Severity),
			)
		}
	}

	if !n.policy.ShouldTransmit(&n.history, reading) {
		n.stats.Skipped++
		n.log.Debug("cycle skipped",
			zap.Float32("humidity_pct", reading.HumidityPct),
			zap.Float32("distance_cm", reading.DistanceCm),
		)
		n.maybeLogStats()
		return
	}

	msg := protocol.NewSensorData(n.cfg.ID, n.uptimeMs(),
		reading.HumidityPct, reading.DistanceCm, n.battery.Level())

	if n.sendWithRetry(msg) {
		n.stats.Sent++
		n.history.Commit(reading)
		n.log.Debug("reading transmitted",
			zap.Float32("humidity_pct", reading.HumidityPct),
			zap.Float32("distance_cm", reading.DistanceCm),
		)
	} else {
		n.stats.Failed++
		// History untouched: next cycle compares against the last
		// reading that actually made it out.
		n.log.Warn("transmit failed after retries",
			zap.Int("attempts", n.cfg.MaxAttempts))
	}
	n.maybeLogStats()
}

// sendWithRetry encodes once and attempts the transmit up to MaxAttempts
// times with a fixed backoff in between. The link is slow and failures are
// hardware or timeout conditions, so exponential growth buys nothing.
// Safe when the radio is down: that is just a failed attempt.
func (n *Node) sendWithRetry(m protocol.Message) bool {
	buf, err := protocol.Encode(m)
	if err != nil {
		// Contract violation, not a link condition.
		n.log.Error("node: encode", zap.Error(err))
		return false
	}
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		err := n.radio.Transmit(buf)
		if err == nil {
			return true
		}
		n.log.Debug("transmit attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < n.cfg.MaxAttempts {
			n.sleep(n.cfg.RetryBackoff.Std())
		}
	}
	return false
}

// sendBootHeartbeat announces the node after radio init, carrying the
// current status flags.
func (n *Node) sendBootHeartbeat() {
	hb := &protocol.Heartbeat{
		NodeID:      n.cfg.ID,
		TimestampMs: n.uptimeMs(),
		Status:      n.statusFlags(),
	}
	if !n.sendWithRetry(hb) {
		n.log.Warn("boot heartbeat not delivered")
	}
}

// statusFlags builds the heartbeat status byte. Only the low-battery bit
// can be raised here: the Sensor and BatterySource collaborators report
// values, not failures, so the sensor-error and radio-error bits stay
// reserved for firmware builds whose drivers surface faults.
func (n *Node) statusFlags() uint8 {
	flags := protocol.StatusOK
	if n.battery.Level() < 20 {
		flags |= protocol.StatusLowBattery
	}
	return flags
}

// uptimeMs is the node clock carried in every frame: milliseconds since
// process start, wrapping like the firmware's millis counter.
func (n *Node) uptimeMs() uint32 {
	return uint32(time.Since(n.bootAt).Milliseconds())
}

func (n *Node) maybeLogStats() {
	if n.cfg.StatsEvery > 0 && n.stats.Cycles%uint64(n.cfg.StatsEvery) == 0 {
		n.logStats()
	}
}

func (n *Node) logStats() {
	skipPct := 0.0
	if n.stats.Cycles > 0 {
		skipPct = float64(n.stats.Skipped) / float64(n.stats.Cycles) * 100
	}
	n.log.Info("transmit stats",
		zap.Uint64("cycles", n.stats.Cycles),
		zap.Uint64("sent", n.stats.Sent),
		zap.Uint64("failed", n.stats.Failed),
		zap.Uint64("skipped", n.stats.Skipped),
		zap.Float64("success_rate", n.stats.SuccessRate()),
		zap.Float64("tx_reduction_pct", skipPct),
	)
}
