package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultPolicy() Policy {
	return Policy{
		Enabled:           true,
		HumidityThreshold: 5.0,
		DistanceThreshold: 10.0,
		HeartbeatEvery:    10,
	}
}

// The very first cycle always transmits, whatever the thresholds: it
// establishes the baseline.
func TestFirstCycleAlwaysTransmits(t *testing.T) {
	p := defaultPolicy()
	p.HumidityThreshold = 1e9
	p.DistanceThreshold = 1e9

	var h History
	h.NextCycle()
	assert.True(t, p.ShouldTransmit(&h, Reading{HumidityPct: 50, DistanceCm: 100}))
}

func TestSignificantChangeTransmits(t *testing.T) {
	p := defaultPolicy()

	tests := []struct {
		name    string
		reading Reading
		want    bool
	}{
		{"no change", Reading{HumidityPct: 50, DistanceCm: 100}, false},
		{"humidity at threshold", Reading{HumidityPct: 55, DistanceCm: 100}, false},
		{"humidity over threshold", Reading{HumidityPct: 55.5, DistanceCm: 100}, true},
		{"humidity dropped", Reading{HumidityPct: 44, DistanceCm: 100}, true},
		{"distance over threshold", Reading{HumidityPct: 50, DistanceCm: 111}, true},
		{"distance dropped", Reading{HumidityPct: 50, DistanceCm: 85}, true},
		{"both small drifts", Reading{HumidityPct: 52, DistanceCm: 104}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h History
			h.NextCycle()
			h.Commit(Reading{HumidityPct: 50, DistanceCm: 100})
			h.NextCycle() // cycle 2, off the heartbeat cadence
			assert.Equal(t, tt.want, p.ShouldTransmit(&h, tt.reading))
		})
	}
}

// With thresholds no reading can cross, transmits happen exactly on the
// heartbeat cadence.
func TestHeartbeatCadence(t *testing.T) {
	p := defaultPolicy()
	p.HumidityThreshold = 1e9
	p.DistanceThreshold = 1e9
	p.HeartbeatEvery = 5

	r := Reading{HumidityPct: 50, DistanceCm: 100}
	var h History

	for cycle := uint32(1); cycle <= 20; cycle++ {
		h.NextCycle()
		got := p.ShouldTransmit(&h, r)
		want := cycle == 1 || cycle%5 == 0
		assert.Equalf(t, want, got, "cycle %d", cycle)
		if got {
			h.Commit(r)
		}
	}
}

// Disabled policy transmits every cycle regardless of readings.
func TestDisabledPolicyAlwaysTransmits(t *testing.T) {
	p := defaultPolicy()
	p.Enabled = false
	p.HumidityThreshold = 1e9
	p.DistanceThreshold = 1e9

	r := Reading{HumidityPct: 50, DistanceCm: 100}
	var h History
	for cycle := 0; cycle < 7; cycle++ {
		h.NextCycle()
		assert.True(t, p.ShouldTransmit(&h, r))
		h.Commit(r)
	}
}

// A failed send leaves the baseline where it was, so drift keeps being
// measured against the last reading that got out.
func TestBaselineMovesOnlyOnCommit(t *testing.T) {
	p := defaultPolicy()

	var h History
	h.NextCycle()
	h.Commit(Reading{HumidityPct: 50, DistanceCm: 100})

	// Drifted reading transmits but the send fails: no Commit.
	h.NextCycle()
	drifted := Reading{HumidityPct: 56, DistanceCm: 100}
	assert.True(t, p.ShouldTransmit(&h, drifted))

	// Next cycle the same drifted reading still trips the threshold.
	h.NextCycle()
	assert.True(t, p.ShouldTransmit(&h, drifted))

	// After a successful send it no longer does.
	h.Commit(drifted)
	h.NextCycle()
	assert.False(t, p.ShouldTransmit(&h, drifted))
}

func TestHistoryReset(t *testing.T) {
	p := defaultPolicy()
	p.HumidityThreshold = 1e9
	p.DistanceThreshold = 1e9

	var h History
	h.NextCycle()
	h.Commit(Reading{HumidityPct: 50, DistanceCm: 100})
	h.Reset()

	h.NextCycle()
	assert.True(t, p.ShouldTransmit(&h, Reading{HumidityPct: 50, DistanceCm: 100}),
		"after reset the first cycle rule applies again")
	assert.Equal(t, uint32(1), h.Cycles())
}
