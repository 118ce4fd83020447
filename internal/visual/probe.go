// Package visual turns the playing signal into bar frames for the primary and
// compact displays, falling back to a deterministic simulation when the signal
// cannot be inspected.
package visual

import "github.com/oszuidwest/zwfm-briefing/internal/audio"

// SignalSource is a tap on the playing audio.
type SignalSource interface {
	Samples(n int) []float64
	Written() uint64
}

// ProbeState is the cached verdict of the capability probe.
type ProbeState int

const (
	ProbePending ProbeState = iota
	ProbeValidated
	ProbeFallback
)

func (s ProbeState) String() string {
	switch s {
	case ProbeValidated:
		return "real"
	case ProbeFallback:
		return "fallback"
	default:
		return "pending"
	}
}

// Probe decides once per session whether the tap delivers real signal.
type Probe struct {
	state ProbeState
}

// State returns the current verdict.
func (p *Probe) State() ProbeState {
	return p.state
}

// Check samples src once if no verdict exists yet. The sample is taken only
// after the tap has seen a full analysis window; until then the probe stays
// pending. Once decided, the verdict never changes until Reset.
func (p *Probe) Check(src SignalSource, an *audio.Analyser, freq []byte) ProbeState {
	if p.state != ProbePending || src == nil {
		return p.state
	}
	if src.Written() < uint64(an.FFTSize()) {
		return p.state
	}

	an.ByteFrequencyData(src.Samples(an.FFTSize()), freq)
	var energy int
	for _, v := range freq {
		energy += int(v)
	}
	if energy > 0 {
		p.state = ProbeValidated
	} else {
		p.state = ProbeFallback
	}
	return p.state
}

// Reset clears the verdict for a new session.
func (p *Probe) Reset() {
	p.state = ProbePending
}
