// Package audio provides signal analysis for decoded playback audio: level
// metering, peak hold and the spectrum analyser that feeds the visualizer.
package audio

import "math"

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// ClipThreshold is slightly below full scale to catch near-clips.
	ClipThreshold = 0.999
)

// LevelData accumulates mono float samples for level calculation.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	ClipCount   int
	SampleCount int
}

// Accumulate adds samples in [-1, 1] to the level data.
func (d *LevelData) Accumulate(samples []float64) {
	for _, s := range samples {
		d.SumSquares += s * s
		abs := math.Abs(s)
		if abs > d.Peak {
			d.Peak = abs
		}
		if abs >= ClipThreshold {
			d.ClipCount++
		}
		d.SampleCount++
	}
}

// Reset clears the accumulators for the next measurement period.
func (d *LevelData) Reset() {
	*d = LevelData{}
}

// Levels contains calculated audio levels in dBFS.
type Levels struct {
	RMS  float64
	Peak float64
	Clip int
}

// CalculateLevels computes RMS and peak levels from accumulated sample data.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{RMS: MinDB, Peak: MinDB}
	}
	rms := math.Sqrt(data.SumSquares / float64(data.SampleCount))
	return Levels{
		RMS:  toDB(rms),
		Peak: toDB(data.Peak),
		Clip: data.ClipCount,
	}
}

// HasEnergy reports whether any sample deviated from zero.
func (d *LevelData) HasEnergy() bool {
	return d.SumSquares > 0
}

func toDB(v float64) float64 {
	if v <= 0 {
		return MinDB
	}
	return max(20*math.Log10(v), MinDB)
}
