package radio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const (
	serialInboxSize   = 256
	serialCmdTimeout  = 2 * time.Second
	serialReadTimeout = 500 * time.Millisecond
)

// Serial drives an RYLR896-style LoRa modem over its AT command set.
// Binary frames travel hex-encoded inside AT+SEND / +RCV lines, which
// keeps the payload safe from the modem's line discipline.
type Serial struct {
	device string
	baud   int
	log    *zap.Logger

	mu    sync.Mutex // guards port writes
	port  *serial.Port
	inbox chan Packet
	resp  chan string
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewSerial constructs the driver without opening the device; Configure
// opens it and applies the RF parameters.
func NewSerial(device string, baud int, log *zap.Logger) *Serial {
	return &Serial{
		device: device,
		baud:   baud,
		log:    log,
		inbox:  make(chan Packet, serialInboxSize),
		resp:   make(chan string, 8),
		done:   make(chan struct{}),
	}
}

// Configure opens the port and programs band, modulation parameters and
// TX power. A failure here means no later cycle can work, so it is
// returned loudly rather than retried.
func (s *Serial) Configure(p Params) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        s.device,
		Baud:        s.baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("radio: serial: open %s: %w", s.device, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(port)

	bw, err := bandwidthIndex(p.BandwidthKHz)
	if err != nil {
		return err
	}
	cmds := []string{
		fmt.Sprintf("AT+BAND=%d", int64(p.FrequencyMHz*1e6)),
		fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d", p.SpreadingFactor, bw, p.CodingRate-4, p.PreambleLen),
		fmt.Sprintf("AT+CRFOP=%d", p.TxPowerDBm),
	}
	for _, cmd := range cmds {
		if err := s.command(cmd); err != nil {
			return fmt.Errorf("radio: serial: configure: %w", err)
		}
	}
	s.log.Info("radio: serial modem configured",
		zap.String("device", s.device),
		zap.Float64("frequency_mhz", p.FrequencyMHz),
		zap.Int("spreading_factor", p.SpreadingFactor),
	)
	return nil
}

func (s *Serial) Transmit(data []byte) error {
	payload := strings.ToUpper(hex.EncodeToString(data))
	if err := s.command(fmt.Sprintf("AT+SEND=0,%d,%s", len(payload), payload)); err != nil {
		return fmt.Errorf("radio: serial: transmit: %w", err)
	}
	return nil
}

// StartReceive is a no-op for this modem: it listens whenever it is not
// transmitting. The read loop is already draining +RCV lines.
func (s *Serial) StartReceive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return fmt.Errorf("radio: serial: not configured")
	}
	return nil
}

func (s *Serial) Poll() (Packet, bool) {
	select {
	case p := <-s.inbox:
		return p, true
	default:
		return Packet{}, false
	}
}

func (s *Serial) Close() error {
	close(s.done)
	s.mu.Lock()
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// ── internal ──────────────────────────────────────────────────────────────

// command writes one AT command and waits for +OK / +ERR.
func (s *Serial) command(cmd string) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return fmt.Errorf("not configured")
	}

	// Drain stale responses from a previous timed-out command.
	for {
		select {
		case <-s.resp:
			continue
		default:
		}
		break
	}

	if _, err := port.Write([]byte(cmd + "\r\n")); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	select {
	case line := <-s.resp:
		if strings.HasPrefix(line, "+ERR") {
			return fmt.Errorf("%q: modem answered %s", cmd, line)
		}
		return nil
	case <-time.After(serialCmdTimeout):
		return fmt.Errorf("%q: no response within %s", cmd, serialCmdTimeout)
	case <-s.done:
		return fmt.Errorf("closed")
	}
}

// readLoop assembles lines from the port and routes them. The port is
// opened with a read timeout, and tarm/serial surfaces a timed-out zero
// read as io.EOF, so EOF here means the line was idle, not that the
// device is gone: keep reading. Any partial line spanning the gap stays
// buffered. Only a real read error (Close included) ends the loop.
func (s *Serial) readLoop(r io.Reader) {
	defer s.wg.Done()

	buf := make([]byte, 512)
	var line []byte
	for {
		select {
		case <-s.done:
			return
		default:
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				s.handleLine(strings.TrimSpace(string(line)))
				line = line[:0]
				continue
			}
			line = append(line, b)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			select {
			case <-s.done:
			default:
				s.log.Warn("radio: serial read failed", zap.Error(err))
			}
			return
		}
	}
}

func (s *Serial) handleLine(line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "+RCV=") {
		pkt, err := parseRcv(line)
		if err != nil {
			s.log.Warn("radio: serial rcv line rejected",
				zap.String("line", line), zap.Error(err))
			return
		}
		select {
		case s.inbox <- pkt:
		default:
			s.log.Warn("radio: serial inbox full, dropping frame")
		}
		return
	}
	// Command response (+OK, +ERR, +READY).
	select {
	case s.resp <- line:
	default:
	}
}

// parseRcv decodes "+RCV=<addr>,<len>,<hexdata>,<rssi>,<snr>".
func parseRcv(line string) (Packet, error) {
	parts := strings.SplitN(strings.TrimPrefix(line, "+RCV="), ",", 5)
	if len(parts) != 5 {
		return Packet{}, fmt.Errorf("radio: serial: malformed +RCV (%d fields)", len(parts))
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil {
		return Packet{}, fmt.Errorf("radio: serial: payload hex: %w", err)
	}
	rssi, err := strconv.ParseFloat(parts[3], 32)
	if err != nil {
		return Packet{}, fmt.Errorf("radio: serial: rssi: %w", err)
	}
	snr, err := strconv.ParseFloat(parts[4], 32)
	if err != nil {
		return Packet{}, fmt.Errorf("radio: serial: snr: %w", err)
	}
	return Packet{Data: data, RSSI: float32(rssi), SNR: float32(snr)}, nil
}

// bandwidthIndex maps kHz to the modem's bandwidth table.
func bandwidthIndex(khz float64) (int, error) {
	switch khz {
	case 7.8:
		return 0, nil
	case 10.4:
		return 1, nil
	case 15.6:
		return 2, nil
	case 20.8:
		return 3, nil
	case 31.25:
		return 4, nil
	case 41.7:
		return 5, nil
	case 62.5:
		return 6, nil
	case 125.0:
		return 7, nil
	case 250.0:
		return 8, nil
	case 500.0:
		return 9, nil
	default:
		return 0, fmt.Errorf("radio: serial: unsupported bandwidth %.2f kHz", khz)
	}
}
