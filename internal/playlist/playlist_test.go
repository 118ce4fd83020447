package playlist

import (
	"math"
	"testing"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
)

func scenario() *Playlist {
	return New(types.Feed{Segments: []types.Segment{
		{File: "s0.mp3", Duration: 40, ArticleHashes: []string{"a", "b"}},
		{File: "s1.mp3", Duration: 50, ArticleHashes: []string{"c"}},
	}})
}

func TestLocateScenario(t *testing.T) {
	p := scenario()
	if !p.SegmentMode() {
		t.Fatal("two segments should enable segment mode")
	}
	tests := []struct {
		t          float64
		wantIndex  int
		wantOffset float64
	}{
		{45, 1, 5},
		{0, 0, 0},
		{39.5, 0, 39.5},
		{40, 1, 0},
		{-3, 0, 0},
		{math.NaN(), 0, 0},
		{90, 1, 50},
		{500, 1, 50},
	}
	for _, tt := range tests {
		i, off := p.Locate(tt.t)
		if i != tt.wantIndex || off != tt.wantOffset {
			t.Errorf("Locate(%v) = (%d, %v), want (%d, %v)", tt.t, i, off, tt.wantIndex, tt.wantOffset)
		}
	}
}

func TestStartTimesSumToTotal(t *testing.T) {
	feeds := [][]float64{
		{40, 50},
		{1.5, 0, 2.25, 10},
		{0, 0, 0},
		{12.3, 45.6, 7.8, 9.1, 0.4},
	}
	for _, durations := range feeds {
		var segs []types.Segment
		for _, d := range durations {
			segs = append(segs, types.Segment{File: "x.mp3", Duration: d})
		}
		p := New(types.Feed{Segments: segs})

		var sum float64
		for i := range durations {
			sum += p.StartTime(i+1) - p.StartTime(i)
		}
		if math.Abs(sum-p.TotalDuration()) > 1e-9 {
			t.Errorf("durations %v: delta sum %v != total %v", durations, sum, p.TotalDuration())
		}
		if p.StartTime(-1) != 0 || p.StartTime(len(durations)+5) != p.TotalDuration() {
			t.Errorf("durations %v: StartTime not clamped", durations)
		}
	}
}

func TestLocateMonotonic(t *testing.T) {
	p := New(types.Feed{Segments: []types.Segment{
		{File: "a", Duration: 3},
		{File: "b", Duration: 0},
		{File: "c", Duration: 7.5},
		{File: "d", Duration: 1},
	}})
	prev := -1
	for x := -1.0; x <= 14; x += 0.25 {
		i, off := p.Locate(x)
		if i < prev {
			t.Fatalf("Locate(%v) index %d went backwards from %d", x, i, prev)
		}
		seg, _ := p.Segment(i)
		if off < 0 || off > seg.Duration {
			t.Fatalf("Locate(%v) offset %v outside segment %d", x, off, i)
		}
		if i == 1 {
			t.Fatalf("Locate(%v) resolved to zero-length segment", x)
		}
		prev = i
	}
}

func TestGlobalElapsed(t *testing.T) {
	p := scenario()
	if got := p.GlobalElapsed(1, 5); got != 45 {
		t.Errorf("GlobalElapsed(1, 5) = %v, want 45", got)
	}
	i, off := p.Locate(p.GlobalElapsed(1, 12))
	if i != 1 || off != 12 {
		t.Errorf("round trip = (%d, %v)", i, off)
	}
}

func TestNonSegmentMode(t *testing.T) {
	single := New(types.Feed{
		Audio:    "brief-en.mp3",
		Duration: 300,
		Segments: []types.Segment{{File: "s0.mp3", Duration: 120, ArticleHashes: []string{"z"}}},
	})
	if single.SegmentMode() {
		t.Fatal("single segment must not enable segment mode")
	}
	if single.TotalDuration() != 300 {
		t.Errorf("TotalDuration = %v, want combined resource duration", single.TotalDuration())
	}
	if got := single.GlobalElapsed(0, 42); got != 42 {
		t.Errorf("GlobalElapsed = %v, want raw offset", got)
	}
	if i, off := single.Locate(400); i != 0 || off != 300 {
		t.Errorf("Locate(400) = (%d, %v)", i, off)
	}
	seg, ok := single.Segment(0)
	if !ok || seg.File != "brief-en.mp3" {
		t.Errorf("Segment(0) = %+v, %v", seg, ok)
	}
	if h := single.Hashes(0); len(h) != 1 || h[0] != "z" {
		t.Errorf("Hashes(0) = %v", h)
	}
	if _, ok := single.Segment(1); ok {
		t.Error("Segment(1) should not exist in non-segment mode")
	}

	empty := New(types.Feed{})
	if !empty.Empty() || empty.Len() != 0 || empty.TotalDuration() != 0 {
		t.Error("empty feed should have nothing to play")
	}
}
