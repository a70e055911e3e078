package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode failure categories. Wrapped with detail by Decode; classify with
// errors.Is. All are recoverable: the receiver counts and discards.
var (
	ErrTooShort       = errors.New("protocol: buffer too short")
	ErrUnknownType    = errors.New("protocol: unknown message type")
	ErrLengthMismatch = errors.New("protocol: length mismatch")
	ErrChecksum       = errors.New("protocol: checksum mismatch")
)

// Checksum XOR-folds every byte except the last (the checksum slot).
// Returns 0 on empty input; callers must not treat that as a valid sum.
func Checksum(buf []byte) byte {
	if len(buf) == 0 {
		return 0
	}
	var sum byte
	for _, b := range buf[:len(buf)-1] {
		sum ^= b
	}
	return sum
}

// Verify reports whether the final byte equals the XOR of all preceding
// bytes. This is an integrity check only, not an authenticator: paired
// byte changes that XOR out cancel undetected.
func Verify(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return Checksum(buf) == buf[len(buf)-1]
}

// Encode serialises a message into its fixed-size wire form, computing the
// checksum over all preceding bytes and writing it last. The buffer is
// allocated at exactly the variant's size. Errors only on a contract
// violation (nil message).
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("protocol: encode nil message")
	}
	size := m.Kind().Size()
	buf := m.appendWire(make([]byte, 0, size))
	buf = append(buf, 0) // checksum slot
	if len(buf) != size {
		return nil, fmt.Errorf("protocol: encode %s: wrote %d bytes, want %d", m.Kind(), len(buf), size)
	}
	buf[size-1] = Checksum(buf)
	return buf, nil
}

// Decode parses one received frame. Dispatch is strict: the tag in byte 0
// selects the variant, the buffer length must equal that variant's fixed
// size exactly, and the checksum must verify. There is no partial decode.
func Decode(buf []byte) (Message, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: empty buffer", ErrTooShort)
	}
	t := Type(buf[0])
	size := t.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, buf[0])
	}
	if len(buf) != size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrLengthMismatch, t, size, len(buf))
	}
	if !Verify(buf) {
		return nil, fmt.Errorf("%w: calculated 0x%02X, received 0x%02X",
			ErrChecksum, Checksum(buf), buf[size-1])
	}

	switch t {
	case TypeSensorData:
		return &SensorData{
			NodeID:      buf[1],
			TimestampMs: binary.LittleEndian.Uint32(buf[2:6]),
			Temperature: int16(binary.LittleEndian.Uint16(buf[6:8])),
			Humidity:    binary.LittleEndian.Uint16(buf[8:10]),
			Distance:    binary.LittleEndian.Uint16(buf[10:12]),
			Battery:     buf[12],
		}, nil
	case TypeHeartbeat:
		return &Heartbeat{
			NodeID:      buf[1],
			TimestampMs: binary.LittleEndian.Uint32(buf[2:6]),
			Status:      buf[6],
		}, nil
	case TypeAlert:
		return &Alert{
			NodeID:      buf[1],
			TimestampMs: binary.LittleEndian.Uint32(buf[2:6]),
			Code:        buf[6],
			Value:       int16(binary.LittleEndian.Uint16(buf[7:9])),
			Severity:    buf[9],
		}, nil
	}
	return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, buf[0])
}

// ── wire packing ──────────────────────────────────────────────────────────

func (m SensorData) appendWire(dst []byte) []byte {
	dst = append(dst, byte(TypeSensorData), m.NodeID)
	dst = binary.LittleEndian.AppendUint32(dst, m.TimestampMs)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(m.Temperature))
	dst = binary.LittleEndian.AppendUint16(dst, m.Humidity)
	dst = binary.LittleEndian.AppendUint16(dst, m.Distance)
	dst = append(dst, m.Battery, 0, 0) // battery + 2 reserved bytes
	return dst
}

func (m Heartbeat) appendWire(dst []byte) []byte {
	dst = append(dst, byte(TypeHeartbeat), m.NodeID)
	dst = binary.LittleEndian.AppendUint32(dst, m.TimestampMs)
	dst = append(dst, m.Status)
	return dst
}

func (m Alert) appendWire(dst []byte) []byte {
	dst = append(dst, byte(TypeAlert), m.NodeID)
	dst = binary.LittleEndian.AppendUint32(dst, m.TimestampMs)
	dst = append(dst, m.Code)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(m.Value))
	dst = append(dst, m.Severity, 0) // severity + 1 reserved byte
	return dst
}

// ── scale conversions ─────────────────────────────────────────────────────
//
// Readings travel as float × 100 truncated toward zero, matching the
// deployed node firmware. The round trip through decode is /100.0 and
// loses anything beyond two decimal places; that approximation is part of
// the wire contract, not a defect.

// EncodeHumidity converts percent to wire centipercent.
func EncodeHumidity(pct float32) uint16 { return uint16(pct * 100) }

// DecodeHumidity converts wire centipercent back to percent.
func DecodeHumidity(v uint16) float32 { return float32(v) / 100 }

// EncodeTemperature converts degrees Celsius to wire centidegrees.
func EncodeTemperature(c float32) int16 { return int16(c * 100) }

// DecodeTemperature converts wire centidegrees back to degrees Celsius.
func DecodeTemperature(v int16) float32 { return float32(v) / 100 }
