package visual

import (
	"math"

	"github.com/oszuidwest/zwfm-briefing/internal/audio"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
)

// Frame sources.
const (
	SourceSignal    = "signal"
	SourceSimulated = "simulated"
	SourceIdle      = "idle"
)

// Smoothing factors per display and signal kind.
const (
	primarySmoothing   = 0.3
	compactSmoothing   = 0.2
	simulatedSmoothing = 0.15
	idleOpacity        = 0.35
)

// display holds the smoothed intensities and geometry of one bar context.
type display struct {
	levels    []float64
	smoothing float64
	minHeight float64
	maxHeight float64
}

func newDisplay(n int, smoothing, minHeight, maxHeight float64) *display {
	return &display{
		levels:    make([]float64, max(n, 1)),
		smoothing: smoothing,
		minHeight: minHeight,
		maxHeight: maxHeight,
	}
}

func (d *display) bar(v, opacity float64) types.Bar {
	h := d.minHeight + clamp01(v)*(d.maxHeight-d.minHeight)
	return types.Bar{
		Height:  math.Round(h*10) / 10,
		Opacity: math.Round(opacity*100) / 100,
	}
}

func (d *display) step(target func(i, n int) float64, alpha float64) []types.Bar {
	n := len(d.levels)
	bars := make([]types.Bar, n)
	for i := range d.levels {
		d.levels[i] += alpha * (target(i, n) - d.levels[i])
		bars[i] = d.bar(d.levels[i], 0.45+0.55*d.levels[i])
	}
	return bars
}

func (d *display) idle() []types.Bar {
	bars := make([]types.Bar, len(d.levels))
	for i := range bars {
		bars[i] = d.bar(IdleBar(i), idleOpacity)
	}
	return bars
}

// Driver produces one Frame per animation tick. It is owned by the session
// loop and is not safe for concurrent use.
type Driver struct {
	primary  *display
	compact  *display
	analyser *audio.Analyser
	probe    Probe
	timeData []byte
	freqData []byte
}

// NewDriver creates a driver for the given primary and compact bar counts.
func NewDriver(bars, compactBars int) *Driver {
	an := audio.NewAnalyser(audio.DefaultFFTSize)
	return &Driver{
		primary:  newDisplay(bars, primarySmoothing, 3, 48),
		compact:  newDisplay(compactBars, compactSmoothing, 2, 20),
		analyser: an,
		timeData: make([]byte, an.FFTSize()),
		freqData: make([]byte, an.FrequencyBinCount()),
	}
}

// Probe returns the current capability verdict.
func (d *Driver) Probe() ProbeState {
	return d.probe.State()
}

// Frame renders the bars for the current tick. While not playing the frame
// is the static idle pattern. While playing, the first frames probe src and
// later frames follow the real signal or the simulation at elapsed seconds.
func (d *Driver) Frame(playing bool, elapsed float64, src SignalSource) types.Frame {
	if !playing {
		return types.Frame{Primary: d.primary.idle(), Compact: d.compact.idle(), Source: SourceIdle}
	}

	if d.probe.Check(src, d.analyser, d.freqData) == ProbeValidated {
		samples := src.Samples(d.analyser.FFTSize())
		d.analyser.ByteTimeDomainData(samples, d.timeData)
		d.analyser.ByteFrequencyData(samples, d.freqData)
		target := func(i, n int) float64 { return realTarget(i, n, d.timeData, d.freqData) }
		return types.Frame{
			Primary: d.primary.step(target, d.primary.smoothing),
			Compact: d.compact.step(target, d.compact.smoothing),
			Source:  SourceSignal,
		}
	}

	target := func(i, n int) float64 { return SimulatedTarget(i, n, elapsed) }
	return types.Frame{
		Primary: d.primary.step(target, simulatedSmoothing),
		Compact: d.compact.step(target, simulatedSmoothing),
		Source:  SourceSimulated,
	}
}

// Reset starts a new session: the probe is cleared and bars drop to zero.
func (d *Driver) Reset() {
	d.probe.Reset()
	d.analyser.Reset()
	clear(d.primary.levels)
	clear(d.compact.levels)
}
