package visual

import "math"

// noise is a deterministic hash of two coordinates into [0, 1).
func noise(i, j float64) float64 {
	v := math.Sin(i*12.9898+j*78.233) * 43758.5453
	return v - math.Floor(v)
}

// envelope weights bars toward the centre where speech energy sits.
func envelope(x float64) float64 {
	const sigma = 0.22
	d := x - 0.5
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

// SimulatedTarget returns the fallback intensity in [0, 1] of bar i out of n
// at elapsed playback time t. It depends only on its arguments.
func SimulatedTarget(i, n int, t float64) float64 {
	if n <= 0 {
		return 0
	}
	fi := float64(i)
	x := (fi + 0.5) / float64(n)
	r := noise(fi, math.Floor(t*10))

	osc := 0.5*math.Sin(t*3.1+fi*0.35) +
		0.3*math.Sin(t*5.7-fi*0.21+1.3) +
		0.2*math.Sin(t*9.3+fi*0.77+2.1)
	osc = 0.5 + 0.5*osc

	return clamp01(0.08 + 0.92*envelope(x)*(0.25+0.45*osc+0.3*r))
}

// IdleBar returns the static intensity of bar i while nothing plays.
func IdleBar(i int) float64 {
	return 0.12 + 0.28*noise(float64(i), 0)
}

// realTarget blends time-domain deviation with frequency energy at a bin that
// rises with the bar position, so low bars follow low frequencies.
func realTarget(i, n int, timeData, freqData []byte) float64 {
	if n <= 0 || len(timeData) == 0 || len(freqData) < 2 {
		return 0
	}
	pos := (float64(i) + 0.5) / float64(n)

	bin := 1 + int(math.Pow(pos, 1.5)*float64(len(freqData)-2))
	bin = min(bin, len(freqData)-1)
	energy := float64(freqData[bin]) / 255

	sample := timeData[min(i*len(timeData)/n, len(timeData)-1)]
	deviation := math.Abs(float64(sample)-128) / 128

	return clamp01(0.35*min(1, deviation*2.5) + 0.65*energy)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
