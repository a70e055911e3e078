package node

// History is the node's transmit baseline: the reading of the last
// successful send plus the running cycle counter. The cycle counter
// advances every cycle; the baseline moves only on a successful send, so
// after a failed send the next cycle still compares against the last
// reading that actually made it out.
type History struct {
	prevHumidity float32
	prevDistance float32
	cycleCount   uint32
	baseline     bool
}

// NextCycle advances the cycle counter. Called once at the top of every
// measurement cycle, before the transmit decision.
func (h *History) NextCycle() { h.cycleCount++ }

// Commit records a successful send of the given reading.
func (h *History) Commit(r Reading) {
	h.prevHumidity = r.HumidityPct
	h.prevDistance = r.DistanceCm
	h.baseline = true
}

// Cycles returns the number of cycles observed so far.
func (h *History) Cycles() uint32 { return h.cycleCount }

// Reset drops the baseline and counter, as after a node restart.
func (h *History) Reset() { *h = History{} }

// Policy decides, once per cycle, whether the current reading is worth
// the airtime. Disabled means every cycle transmits; both modes share the
// same encode and retry path downstream.
type Policy struct {
	Enabled           bool
	HumidityThreshold float32
	DistanceThreshold float32
	HeartbeatEvery    uint32
}

// ShouldTransmit applies the decision rules in order: first cycle ever,
// significant change against the baseline, then the periodic heartbeat
// cycle that proves liveness when nothing changes.
func (p Policy) ShouldTransmit(h *History, r Reading) bool {
	if !p.Enabled {
		return true
	}
	if !h.baseline {
		return true
	}
	if abs(r.HumidityPct-h.prevHumidity) > p.HumidityThreshold {
		return true
	}
	if abs(r.DistanceCm-h.prevDistance) > p.DistanceThreshold {
		return true
	}
	if p.HeartbeatEvery > 0 && h.cycleCount%p.HeartbeatEvery == 0 {
		return true
	}
	return false
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
