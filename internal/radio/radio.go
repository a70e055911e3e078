// Package radio abstracts the LoRa transceiver behind a small poll-based
// contract. Three drivers exist: an in-memory loopback pair for tests and
// simulate mode, a TCP client for a modem bridge daemon, and a serial
// driver for RYLR896-style AT modems.
package radio

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/config"
)

// Params holds the RF configuration. Both ends of a link must use the same
// values or frames are never received.
type Params struct {
	FrequencyMHz    float64
	BandwidthKHz    float64
	SpreadingFactor int
	CodingRate      int
	SyncWord        byte
	TxPowerDBm      int
	PreambleLen     int
}

// ParamsFromConfig maps the radio config section onto RF parameters.
func ParamsFromConfig(cfg config.RadioConfig) Params {
	return Params{
		FrequencyMHz:    cfg.FrequencyMHz,
		BandwidthKHz:    cfg.BandwidthKHz,
		SpreadingFactor: cfg.SpreadingFactor,
		CodingRate:      cfg.CodingRate,
		SyncWord:        cfg.SyncWord,
		TxPowerDBm:      cfg.TxPowerDBm,
		PreambleLen:     cfg.PreambleLen,
	}
}

// Packet is one received frame plus the link quality the radio measured
// for it. RSSI and SNR are carried through to the output record; they are
// never used for validation.
type Packet struct {
	Data []byte
	RSSI float32 // dBm
	SNR  float32 // dB
}

// Radio is the transceiver contract consumed by the node and gateway loops.
// Transmit and the underlying receive path may block briefly (bounded by
// driver timeouts); Poll never blocks.
type Radio interface {
	// Configure applies RF parameters. Must be called before Transmit or
	// StartReceive. A failure here affects every subsequent cycle and is
	// escalated by the caller.
	Configure(p Params) error
	// Transmit sends one frame. Safe to call when the link is down; it
	// fails instead of panicking.
	Transmit(data []byte) error
	// StartReceive switches the radio into receive mode.
	StartReceive() error
	// Poll returns the next received packet if one is waiting.
	Poll() (Packet, bool)
	// Close releases the driver. The radio must not be used afterwards.
	Close() error
}

// New constructs the driver selected by cfg.Driver. The "loop" driver has
// no peer and therefore never receives anything; it exists for smoke runs
// without hardware (simulate mode builds its own pair).
func New(cfg config.RadioConfig, log *zap.Logger) (Radio, error) {
	switch cfg.Driver {
	case "loop":
		a, _ := NewLoopPair(log)
		return a, nil
	case "tcp":
		return NewTCP(cfg.Addr, log), nil
	case "serial":
		return NewSerial(cfg.Port, cfg.Baud, log), nil
	default:
		return nil, fmt.Errorf("radio: unknown driver %q", cfg.Driver)
	}
}
