package node

import (
	"math"
	"time"

	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/protocol"
)

// Alerter turns readings that cross configured bounds into Alert frames.
// Each alert code has a cooldown so a condition that persists across many
// cycles does not spam the link every cycle.
type Alerter struct {
	cfg      config.AlertConfig
	lastSent map[uint8]time.Time
	now      func() time.Time
}

// NewAlerter builds an Alerter from the node's alert bounds.
func NewAlerter(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:      cfg,
		lastSent: make(map[uint8]time.Time),
		now:      time.Now,
	}
}

// Evaluate returns the alerts the reading triggers, cooldowns applied.
// Values travel as the reading scaled by 100 and truncated, matching the
// wire fixed-point convention.
func (a *Alerter) Evaluate(nodeID uint8, timestampMs uint32, r Reading) []*protocol.Alert {
	if !a.cfg.Enabled {
		return nil
	}

	var alerts []*protocol.Alert
	add := func(code uint8, value float32, severity uint8) {
		if !a.due(code) {
			return
		}
		alerts = append(alerts, &protocol.Alert{
			NodeID:      nodeID,
			TimestampMs: timestampMs,
			Code:        code,
			Value:       scaleAlertValue(value),
			Severity:    severity,
		})
		a.lastSent[code] = a.now()
	}

	switch {
	case r.HumidityPct > a.cfg.HumidityHigh:
		add(protocol.AlertHumidityHigh, r.HumidityPct, humiditySeverity(r.HumidityPct-a.cfg.HumidityHigh))
	case r.HumidityPct < a.cfg.HumidityLow:
		add(protocol.AlertHumidityLow, r.HumidityPct, humiditySeverity(a.cfg.HumidityLow-r.HumidityPct))
	}
	if r.DistanceCm < a.cfg.DistanceLow {
		add(protocol.AlertDistanceLow, r.DistanceCm, protocol.SeverityWarning)
	}
	return alerts
}

// due reports whether the cooldown for code has elapsed.
func (a *Alerter) due(code uint8) bool {
	last, ok := a.lastSent[code]
	if !ok {
		return true
	}
	return a.now().Sub(last) >= a.cfg.Cooldown.Std()
}

// scaleAlertValue converts a reading to the wire's ×100 fixed point,
// saturating at the int16 range: a distance bound above 327 cm would
// otherwise wrap the value negative.
func scaleAlertValue(v float32) int16 {
	scaled := float64(v) * 100
	switch {
	case scaled > math.MaxInt16:
		return math.MaxInt16
	case scaled < math.MinInt16:
		return math.MinInt16
	}
	return int16(scaled)
}

// humiditySeverity grades by how far past the bound the reading is.
func humiditySeverity(overshoot float32) uint8 {
	if overshoot > 10 {
		return protocol.SeverityCritical
	}
	return protocol.SeverityWarning
}
