// Package protocol implements the binary wire protocol spoken between
// field sensor nodes and the gateway. All frames are little-endian,
// fixed-size, and end in a one-byte XOR checksum. Three kinds exist:
// SensorData (16 bytes), Heartbeat (8 bytes), and Alert (12 bytes).
//
// The layout is byte-exact across independently built nodes and gateways,
// so fields are packed at explicit offsets; in-memory struct layout never
// touches the wire.
package protocol

import "fmt"

// Type is the one-byte message kind tag carried in byte 0 of every frame.
type Type uint8

const (
	TypeSensorData Type = 0x01
	TypeHeartbeat  Type = 0x02
	TypeAlert      Type = 0x03

	// TypeAck is reserved by the protocol for acknowledgement frames.
	// No deployed firmware emits it; receivers treat it as unknown.
	TypeAck Type = 0xAA
)

// Fixed encoded sizes, checksum byte included.
const (
	SensorDataSize = 16
	HeartbeatSize  = 8
	AlertSize      = 12
)

// Size returns the exact encoded size for the kind, or 0 if the kind is
// not decodable.
func (t Type) Size() int {
	switch t {
	case TypeSensorData:
		return SensorDataSize
	case TypeHeartbeat:
		return HeartbeatSize
	case TypeAlert:
		return AlertSize
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case TypeSensorData:
		return "sensor_data"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeAlert:
		return "alert"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

// Status flags carried by Heartbeat frames (bit field).
const (
	StatusOK          uint8 = 0x00
	StatusLowBattery  uint8 = 0x01
	StatusSensorError uint8 = 0x02
	StatusRadioError  uint8 = 0x04
)

// Alert codes.
const (
	AlertTempHigh     uint8 = 0x10
	AlertTempLow      uint8 = 0x11
	AlertHumidityHigh uint8 = 0x20
	AlertHumidityLow  uint8 = 0x21
	AlertDistanceLow  uint8 = 0x30
)

// Alert severity levels.
const (
	SeverityInfo     uint8 = 1
	SeverityWarning  uint8 = 2
	SeverityCritical uint8 = 3
)

// Message is one typed wire frame. Implementations are exactly the three
// variants in this package; fields hold wire units so that
// Decode(Encode(m)) reproduces m bit for bit.
type Message interface {
	Kind() Type

	// appendWire writes every field except the trailing checksum byte.
	appendWire(dst []byte) []byte
}

// SensorData is the periodic measurement report (16 bytes on the wire).
type SensorData struct {
	NodeID      uint8
	TimestampMs uint32 // node clock, milliseconds since boot
	Temperature int16  // centidegrees Celsius; deployed nodes send 0
	Humidity    uint16 // centipercent relative humidity
	Distance    uint16 // centimeters
	Battery     uint8  // percent
}

func (SensorData) Kind() Type { return TypeSensorData }

// HumidityPct returns the humidity in percent.
func (m SensorData) HumidityPct() float32 { return DecodeHumidity(m.Humidity) }

// TemperatureC returns the temperature in degrees Celsius.
func (m SensorData) TemperatureC() float32 { return DecodeTemperature(m.Temperature) }

// NewSensorData builds a SensorData frame from engineering units. Humidity
// is scaled to centipercent and the distance truncated to whole
// centimeters, both matching the node firmware conversions.
func NewSensorData(nodeID uint8, timestampMs uint32, humidityPct, distanceCm float32, battery uint8) *SensorData {
	return &SensorData{
		NodeID:      nodeID,
		TimestampMs: timestampMs,
		Humidity:    EncodeHumidity(humidityPct),
		Distance:    uint16(distanceCm),
		Battery:     battery,
	}
}

// Heartbeat is the liveness report (8 bytes on the wire).
type Heartbeat struct {
	NodeID      uint8
	TimestampMs uint32
	Status      uint8 // bit field of Status* flags
}

func (Heartbeat) Kind() Type { return TypeHeartbeat }

// Alert reports a threshold crossing (12 bytes on the wire).
type Alert struct {
	NodeID      uint8
	TimestampMs uint32
	Code        uint8
	Value       int16 // scaled reading that tripped the alert (×100)
	Severity    uint8
}

func (Alert) Kind() Type { return TypeAlert }
