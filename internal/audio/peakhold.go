package audio

import "time"

// PeakHoldDuration is how long peaks are held before decay.
const PeakHoldDuration = 1500 * time.Millisecond

// PeakHolder tracks peak-hold state for the status VU meter.
type PeakHolder struct {
	held     float64
	heldTime time.Time
}

// NewPeakHolder creates a new peak holder initialized to minimum level.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{held: MinDB}
}

// Update returns the held peak after observing peak at now. A higher peak
// replaces the held one immediately; a lower one only after the hold expires.
func (p *PeakHolder) Update(peak float64, now time.Time) float64 {
	if peak >= p.held || now.Sub(p.heldTime) > PeakHoldDuration {
		p.held = peak
		p.heldTime = now
	}
	return p.held
}

// Reset resets peak hold to minimum level.
func (p *PeakHolder) Reset() {
	p.held = MinDB
	p.heldTime = time.Time{}
}
