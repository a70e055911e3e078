package node

import (
	"math/rand"
	"sync"
)

// Sensor ranges. Readings outside these are clamped, never rejected: the
// physical sensor collaborator is best-effort and never fails.
const (
	HumidityMin = 0.0
	HumidityMax = 100.0
	DistanceMin = 2.0
	DistanceMax = 400.0
)

// Reading is one measurement cycle's output.
type Reading struct {
	HumidityPct float32
	DistanceCm  float32
}

// Sensor yields readings. Read may block briefly while the hardware
// samples; it never fails.
type Sensor interface {
	Read() Reading
}

// BatterySource reports the remaining battery in percent.
type BatterySource interface {
	Level() uint8
}

// ── simulated collaborators ───────────────────────────────────────────────

// SimSensor produces a correlated random walk around base values, clamped
// to the physical sensor ranges. Each new value blends toward the previous
// one so consecutive readings look like a real slow-moving environment.
// Deterministic for a given seed.
type SimSensor struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last Reading
}

// NewSimSensor seeds the walk at the given base values.
func NewSimSensor(seed int64, baseHumidity, baseDistance float32) *SimSensor {
	return &SimSensor{
		rng: rand.New(rand.NewSource(seed)),
		last: Reading{
			HumidityPct: clamp(baseHumidity, HumidityMin, HumidityMax),
			DistanceCm:  clamp(baseDistance, DistanceMin, DistanceMax),
		},
	}
}

func (s *SimSensor) Read() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	humidity := s.last.HumidityPct + float32(s.rng.Float64()-0.5)*4.0
	distance := s.last.DistanceCm + float32(s.rng.Float64()-0.5)*30.0

	// Temporal blend: 70% previous, 30% new sample.
	s.last = Reading{
		HumidityPct: clamp(s.last.HumidityPct*0.7+humidity*0.3, HumidityMin, HumidityMax),
		DistanceCm:  clamp(s.last.DistanceCm*0.7+distance*0.3, DistanceMin, DistanceMax),
	}
	return s.last
}

// SimBattery declines linearly from full, one step per Level call.
type SimBattery struct {
	mu            sync.Mutex
	level         float64
	drainPerCycle float64
}

// NewSimBattery starts at 100% draining drainPerCycle percent per cycle.
func NewSimBattery(drainPerCycle float64) *SimBattery {
	return &SimBattery{level: 100, drainPerCycle: drainPerCycle}
}

func (b *SimBattery) Level() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	level := b.level
	if b.level > 0 {
		b.level -= b.drainPerCycle
		if b.level < 0 {
			b.level = 0
		}
	}
	return uint8(level)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
