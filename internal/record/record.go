// Package record builds the structured output record the gateway hands to
// its egress sinks: one validated sensor message plus the link quality the
// radio measured when receiving it.
package record

import (
	"fmt"
	"time"

	"github.com/fieldgate/fieldgate/internal/protocol"
)

// Sensors groups the measured values.
type Sensors struct {
	HumidityPercent  float32 `json:"humidity_percent"`
	DistanceCm       uint16  `json:"distance_cm"`
	PresenceDetected bool    `json:"presence_detected"`
}

// Link carries per-packet radio quality. Informational only; it never
// participates in validation.
type Link struct {
	RSSIDBm float32 `json:"rssi_dbm"`
	SNRDb   float32 `json:"snr_db"`
}

// Record is the output of the receive path, immutable once built. The
// node's embedded timestamp is preserved verbatim next to the gateway's
// own; the two are never reconciled.
type Record struct {
	NodeID            string  `json:"node_id"`
	GatewayID         string  `json:"gateway_id"`
	GatewayTimestamp  string  `json:"gateway_timestamp"`
	ClientTimestampMs uint32  `json:"client_timestamp_ms"`
	Sensors           Sensors `json:"sensors"`
	BatteryPercent    uint8   `json:"battery_percent"`
	Radio             Link    `json:"radio"`
}

// Clock reports the current time and whether it comes from a synchronized
// wall-clock source. Unsynchronized gateways still get usable, clearly
// marked timestamps.
type Clock interface {
	Now() (time.Time, bool)
}

type systemClock struct{}

func (systemClock) Now() (time.Time, bool) { return time.Now().UTC(), true }

// SystemClock returns a Clock backed by synchronized host time.
func SystemClock() Clock { return systemClock{} }

type unsyncedClock struct{}

func (unsyncedClock) Now() (time.Time, bool) { return time.Now().UTC(), false }

// UnsyncedClock returns a Clock for hosts with no trusted time source;
// records then carry boot-relative timestamps.
func UnsyncedClock() Clock { return unsyncedClock{} }

// Projector converts validated SensorData messages into Records.
type Projector struct {
	gatewayID         string
	presenceThreshold float32 // cm
	clock             Clock
	bootAt            time.Time
}

// NewProjector builds a Projector. The boot reference for unsynchronized
// timestamps is taken at construction.
func NewProjector(gatewayID string, presenceThresholdCm float32, clock Clock) *Projector {
	now, _ := clock.Now()
	return &Projector{
		gatewayID:         gatewayID,
		presenceThreshold: presenceThresholdCm,
		clock:             clock,
		bootAt:            now,
	}
}

// Project builds the record for one sensor message. Deterministic apart
// from the timestamp.
func (p *Projector) Project(m *protocol.SensorData, rssi, snr float32) *Record {
	return &Record{
		NodeID:            fmt.Sprintf("node-%d", m.NodeID),
		GatewayID:         p.gatewayID,
		GatewayTimestamp:  p.timestamp(),
		ClientTimestampMs: m.TimestampMs,
		Sensors: Sensors{
			HumidityPercent:  m.HumidityPct(),
			DistanceCm:       m.Distance,
			PresenceDetected: float32(m.Distance) < p.presenceThreshold,
		},
		BatteryPercent: m.Battery,
		Radio:          Link{RSSIDBm: rssi, SNRDb: snr},
	}
}

// timestamp formats the gateway time. The unsynchronized form is chosen so
// it can never be mistaken for a wall-clock value.
func (p *Projector) timestamp() string {
	now, synced := p.clock.Now()
	if synced {
		return now.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	return fmt.Sprintf("boot+%dms", now.Sub(p.bootAt).Milliseconds())
}
