package audio

import "math"

// Analyser defaults match a browser analyser node.
const (
	DefaultFFTSize     = 256
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
)

// Analyser converts a window of samples into byte time-domain and frequency
// data. It keeps smoothing state between calls and is not safe for
// concurrent use.
type Analyser struct {
	size        int
	smoothing   float64
	minDecibels float64
	maxDecibels float64

	window []float64
	mags   []float64
	re, im []float64
}

// NewAnalyser creates an analyser for windows of size samples. Sizes that are
// not a power of two fall back to DefaultFFTSize.
func NewAnalyser(size int) *Analyser {
	if !isPowerOfTwo(size) {
		size = DefaultFFTSize
	}
	a := &Analyser{
		size:        size,
		smoothing:   DefaultSmoothing,
		minDecibels: DefaultMinDecibels,
		maxDecibels: DefaultMaxDecibels,
		window:      make([]float64, size),
		mags:        make([]float64, size/2),
		re:          make([]float64, size),
		im:          make([]float64, size),
	}
	for i := range a.window {
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return a
}

// FFTSize returns the number of samples consumed per analysis.
func (a *Analyser) FFTSize() int {
	return a.size
}

// FrequencyBinCount returns the number of frequency bins produced.
func (a *Analyser) FrequencyBinCount() int {
	return a.size / 2
}

// SetSmoothing sets the time smoothing of the frequency magnitudes, clamped to [0, 1).
func (a *Analyser) SetSmoothing(s float64) {
	a.smoothing = max(0, min(s, 0.99))
}

// ByteTimeDomainData writes the most recent FFTSize samples as bytes
// centred on 128 into dst. Missing samples read as silence.
func (a *Analyser) ByteTimeDomainData(samples []float64, dst []byte) {
	src := a.latest(samples)
	for i := range dst {
		v := 0.0
		if i < len(src) {
			v = src[i]
		}
		dst[i] = clampByte(128 * (1 + v))
	}
}

// ByteFrequencyData writes smoothed magnitudes scaled between the min and
// max decibel bounds into dst.
func (a *Analyser) ByteFrequencyData(samples []float64, dst []byte) {
	src := a.latest(samples)
	for i := range a.re {
		v := 0.0
		if i < len(src) {
			v = src[i]
		}
		a.re[i] = v * a.window[i]
		a.im[i] = 0
	}
	fft(a.re, a.im)

	scale := 255 / (a.maxDecibels - a.minDecibels)
	for k := range a.mags {
		mag := math.Hypot(a.re[k], a.im[k]) / float64(a.size)
		a.mags[k] = a.smoothing*a.mags[k] + (1-a.smoothing)*mag
	}
	for k := range dst {
		if k >= len(a.mags) || a.mags[k] <= 0 {
			dst[k] = 0
			continue
		}
		db := 20 * math.Log10(a.mags[k])
		dst[k] = clampByte((db - a.minDecibels) * scale)
	}
}

// Reset clears the smoothing history.
func (a *Analyser) Reset() {
	clear(a.mags)
}

// latest returns the trailing FFTSize samples, right-aligned when fewer exist.
func (a *Analyser) latest(samples []float64) []float64 {
	if len(samples) >= a.size {
		return samples[len(samples)-a.size:]
	}
	out := make([]float64, a.size)
	copy(out[a.size-len(samples):], samples)
	return out
}

func clampByte(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}
