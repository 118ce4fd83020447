// Package playlist models a segmented briefing as one continuous timeline.
package playlist

import (
	"math"
	"slices"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
)

// Playlist maps between global show time and (segment, offset) positions.
// It is immutable after construction and safe for concurrent reads.
type Playlist struct {
	segments    []types.Segment
	starts      []float64 // starts[i] = sum(duration[0:i]), len(segments)+1 entries
	single      types.Segment
	segmentMode bool
	generatedAt string
}

// New builds a Playlist from a feed. With fewer than two segments the
// playlist runs in non-segment mode over a single resource: the feed's
// combined audio when present, otherwise the lone segment.
func New(feed types.Feed) *Playlist {
	p := &Playlist{
		segments:    slices.Clone(feed.Segments),
		segmentMode: len(feed.Segments) > 1,
		generatedAt: feed.GeneratedAt,
	}

	p.starts = make([]float64, len(p.segments)+1)
	for i, seg := range p.segments {
		p.starts[i+1] = p.starts[i] + seg.Duration
	}

	if !p.segmentMode {
		if len(p.segments) == 1 {
			p.single = p.segments[0]
		}
		if feed.Audio != "" {
			p.single.File = feed.Audio
			if feed.Duration > 0 {
				p.single.Duration = feed.Duration
			}
		}
		p.single.Index = 0
	}
	return p
}

// SegmentMode reports whether the briefing is played segment by segment.
func (p *Playlist) SegmentMode() bool {
	return p.segmentMode
}

// Empty reports whether there is nothing to play.
func (p *Playlist) Empty() bool {
	if p.segmentMode {
		return false
	}
	return p.single.File == ""
}

// GeneratedAt returns the generator timestamp of the feed.
func (p *Playlist) GeneratedAt() string {
	return p.generatedAt
}

// Len returns the number of loadable resources.
func (p *Playlist) Len() int {
	if p.segmentMode {
		return len(p.segments)
	}
	if p.Empty() {
		return 0
	}
	return 1
}

// Segment returns the resource at index i. In non-segment mode only index 0
// exists and refers to the single resource.
func (p *Playlist) Segment(i int) (types.Segment, bool) {
	if !p.segmentMode {
		if i != 0 || p.Empty() {
			return types.Segment{}, false
		}
		return p.single, true
	}
	if i < 0 || i >= len(p.segments) {
		return types.Segment{}, false
	}
	return p.segments[i], true
}

// Segments returns a copy of the segment list.
func (p *Playlist) Segments() []types.Segment {
	return slices.Clone(p.segments)
}

// TotalDuration returns the length of the whole show in seconds.
func (p *Playlist) TotalDuration() float64 {
	if !p.segmentMode {
		return p.single.Duration
	}
	return p.starts[len(p.segments)]
}

// StartTime returns the global time at which segment i begins. Indices
// outside [0, len] are clamped.
func (p *Playlist) StartTime(i int) float64 {
	if !p.segmentMode {
		return 0
	}
	return p.starts[max(0, min(i, len(p.segments)))]
}

// GlobalElapsed converts a position within a segment to show time.
func (p *Playlist) GlobalElapsed(index int, offset float64) float64 {
	if !p.segmentMode {
		return offset
	}
	return p.StartTime(index) + offset
}

// Locate resolves a global time to the segment containing it and the offset
// within that segment. Negative or NaN input resolves to the start; input past
// the end resolves to the end of the last segment.
func (p *Playlist) Locate(t float64) (index int, offset float64) {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if !p.segmentMode {
		return 0, min(t, p.single.Duration)
	}

	for i := range p.segments {
		if t >= p.starts[i] && t < p.starts[i+1] {
			return i, t - p.starts[i]
		}
	}
	last := len(p.segments) - 1
	return last, p.segments[last].Duration
}

// Hashes returns the content hashes covered by resource i.
func (p *Playlist) Hashes(i int) []string {
	seg, ok := p.Segment(i)
	if !ok {
		return nil
	}
	return slices.Clone(seg.ArticleHashes)
}
