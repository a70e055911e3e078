package radio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	tcpInitialBackoff = 2 * time.Second
	tcpMaxBackoff     = 60 * time.Second
	tcpDialTimeout    = 5 * time.Second
	tcpInboxSize      = 256
	tcpMaxFrame       = 1024

	// Received payloads carry a trailer the bridge appends: RSSI and SNR
	// as two little-endian float32 values.
	tcpTrailerSize = 8
)

// linkState describes the bridge connection.
type linkState int32

const (
	linkDisconnected linkState = iota
	linkConnecting
	linkConnected
	linkFailed
)

func (s linkState) String() string {
	switch s {
	case linkConnecting:
		return "connecting"
	case linkConnected:
		return "connected"
	case linkFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// TCP talks to a modem bridge daemon that owns the physical transceiver.
// Framing is a 4-byte big-endian length prefix + payload; received
// payloads end in the 8-byte link-quality trailer. The connection loop
// reconnects with exponential backoff — that is the transport link's
// concern; the node's own send retries stay fixed-backoff.
type TCP struct {
	addr   string
	log    *zap.Logger
	inbox  chan Packet
	state  atomic.Int32 // linkState
	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTCP constructs the driver without connecting. StartReceive begins the
// connect loop.
func NewTCP(addr string, log *zap.Logger) *TCP {
	t := &TCP{
		addr:  addr,
		log:   log,
		inbox: make(chan Packet, tcpInboxSize),
	}
	t.state.Store(int32(linkDisconnected))
	return t
}

// Configure is a no-op beyond validation: the bridge daemon owns the RF
// settings of the modem it fronts.
func (t *TCP) Configure(p Params) error {
	if p.FrequencyMHz <= 0 {
		return fmt.Errorf("radio: tcp: invalid frequency %.1f MHz", p.FrequencyMHz)
	}
	t.log.Debug("radio: tcp bridge carries its own RF config",
		zap.String("addr", t.addr),
		zap.Float64("frequency_mhz", p.FrequencyMHz),
	)
	return nil
}

func (t *TCP) Transmit(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("radio: tcp: not connected")
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(data)))
	if _, err := conn.Write(append(hdr, data...)); err != nil {
		return fmt.Errorf("radio: tcp: send: %w", err)
	}
	return nil
}

func (t *TCP) StartReceive() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go t.connectLoop(ctx)
	return nil
}

func (t *TCP) Poll() (Packet, bool) {
	select {
	case p := <-t.inbox:
		return p, true
	default:
		return Packet{}, false
	}
}

func (t *TCP) Close() error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()
	t.wg.Wait()
	t.state.Store(int32(linkDisconnected))
	return nil
}

// ── internal ──────────────────────────────────────────────────────────────

func (t *TCP) connectLoop(ctx context.Context) {
	defer t.wg.Done()

	backoff := tcpInitialBackoff
	for {
		if ctx.Err() != nil {
			t.state.Store(int32(linkDisconnected))
			return
		}

		t.state.Store(int32(linkConnecting))
		conn, err := net.DialTimeout("tcp", t.addr, tcpDialTimeout)
		if err != nil {
			t.log.Warn("radio: tcp dial failed",
				zap.String("addr", t.addr),
				zap.Duration("retry_in", backoff),
				zap.Error(err),
			)
			t.state.Store(int32(linkFailed))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				backoff = min(backoff*2, tcpMaxBackoff)
				continue
			}
		}

		backoff = tcpInitialBackoff
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		t.state.Store(int32(linkConnected))
		t.log.Info("radio: tcp bridge connected", zap.String("addr", t.addr))

		t.readFrames(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		t.state.Store(int32(linkDisconnected))

		if ctx.Err() != nil {
			return
		}
		t.log.Info("radio: tcp bridge lost, reconnecting",
			zap.Duration("backoff", backoff))
	}
}

func (t *TCP) readFrames(ctx context.Context, conn net.Conn) {
	hdr := make([]byte, 4)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		if _, err := io.ReadFull(conn, hdr); err != nil {
			if ctx.Err() == nil {
				t.log.Debug("radio: tcp read header", zap.Error(err))
			}
			return
		}
		n := binary.BigEndian.Uint32(hdr)
		if n == 0 || n > tcpMaxFrame {
			t.log.Warn("radio: tcp invalid frame size", zap.Uint32("size", n))
			return
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			if ctx.Err() == nil {
				t.log.Debug("radio: tcp read payload", zap.Error(err))
			}
			return
		}

		pkt, err := splitTrailer(payload)
		if err != nil {
			t.log.Warn("radio: tcp frame rejected", zap.Error(err))
			continue
		}
		select {
		case t.inbox <- pkt:
		case <-ctx.Done():
			return
		default:
			t.log.Warn("radio: tcp inbox full, dropping frame")
		}
	}
}

// splitTrailer separates the wire frame from the bridge's link-quality
// trailer.
func splitTrailer(payload []byte) (Packet, error) {
	if len(payload) <= tcpTrailerSize {
		return Packet{}, fmt.Errorf("radio: tcp: frame shorter than trailer (%d bytes)", len(payload))
	}
	body := payload[:len(payload)-tcpTrailerSize]
	trailer := payload[len(payload)-tcpTrailerSize:]
	return Packet{
		Data: body,
		RSSI: math.Float32frombits(binary.LittleEndian.Uint32(trailer[0:4])),
		SNR:  math.Float32frombits(binary.LittleEndian.Uint32(trailer[4:8])),
	}, nil
}
