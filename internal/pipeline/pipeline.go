// Package pipeline classifies and validates received byte buffers. Each
// buffer is processed independently; the only state carried across buffers
// is the Stats counters. A failure never stops the pipeline from accepting
// the next buffer.
package pipeline

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/protocol"
)

// Pipeline validates raw frames into typed messages.
type Pipeline struct {
	stats *Stats
	log   *zap.Logger
}

// New constructs a Pipeline with fresh statistics.
func New(log *zap.Logger) *Pipeline {
	return &Pipeline{stats: newStats(), log: log}
}

// Stats exposes the shared counters for the status API and the periodic
// stats log.
func (p *Pipeline) Stats() *Stats { return p.stats }

// Process runs one buffer through the classify/validate steps: length,
// type tag, exact size per kind, checksum. On success the decoded message
// is returned and the valid counter for its kind incremented; every
// failure increments the matching counter and returns the decode error.
func (p *Pipeline) Process(buf []byte) (protocol.Message, error) {
	p.stats.observe()

	msg, err := protocol.Decode(buf)
	if err != nil {
		p.stats.observeError(buf, err)
		p.log.Debug("pipeline: frame rejected",
			zap.Int("length", len(buf)),
			zap.Error(err),
		)
		return nil, err
	}

	p.stats.observeValid(msg.Kind())
	return msg, nil
}

// ── statistics ────────────────────────────────────────────────────────────

// KindCounters is the per-message-kind breakdown.
type KindCounters struct {
	Valid       uint64 `json:"valid"`
	BadLength   uint64 `json:"bad_length"`
	BadChecksum uint64 `json:"bad_checksum"`
}

// Snapshot is a point-in-time copy of the counters. Invalid aggregates
// every rejection category, checksum failures included.
type Snapshot struct {
	Seen        uint64                  `json:"seen"`
	Valid       uint64                  `json:"valid"`
	Invalid     uint64                  `json:"invalid"`
	TooShort    uint64                  `json:"too_short"`
	UnknownType uint64                  `json:"unknown_type"`
	Kinds       map[string]KindCounters `json:"kinds"`
	LastValid   time.Time               `json:"last_valid,omitempty"`
}

// SuccessRate returns valid/seen, or 0 before the first packet.
func (s Snapshot) SuccessRate() float64 {
	if s.Seen == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Seen)
}

// Stats holds the receive counters. The poll loop is the only writer; the
// lock exists because the REST layer snapshots concurrently.
type Stats struct {
	mu          sync.RWMutex
	seen        uint64
	tooShort    uint64
	unknownType uint64
	kinds       map[protocol.Type]*KindCounters
	lastValid   time.Time
}

func newStats() *Stats {
	return &Stats{kinds: make(map[protocol.Type]*KindCounters)}
}

// Snapshot returns a copy safe to serialize.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Seen:        s.seen,
		TooShort:    s.tooShort,
		UnknownType: s.unknownType,
		Kinds:       make(map[string]KindCounters, len(s.kinds)),
		LastValid:   s.lastValid,
	}
	snap.Invalid = s.tooShort + s.unknownType
	for t, kc := range s.kinds {
		snap.Kinds[t.String()] = *kc
		snap.Valid += kc.Valid
		snap.Invalid += kc.BadLength + kc.BadChecksum
	}
	return snap
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen, s.tooShort, s.unknownType = 0, 0, 0
	s.kinds = make(map[protocol.Type]*KindCounters)
	s.lastValid = time.Time{}
}

func (s *Stats) observe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
}

func (s *Stats) observeValid(t protocol.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind(t).Valid++
	s.lastValid = time.Now().UTC()
}

func (s *Stats) observeError(buf []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, protocol.ErrTooShort):
		s.tooShort++
	case errors.Is(err, protocol.ErrUnknownType):
		s.unknownType++
	case errors.Is(err, protocol.ErrLengthMismatch):
		s.kind(protocol.Type(buf[0])).BadLength++
	case errors.Is(err, protocol.ErrChecksum):
		s.kind(protocol.Type(buf[0])).BadChecksum++
	default:
		s.unknownType++
	}
}

func (s *Stats) kind(t protocol.Type) *KindCounters {
	kc, ok := s.kinds[t]
	if !ok {
		kc = &KindCounters{}
		s.kinds[t] = kc
	}
	return kc
}
