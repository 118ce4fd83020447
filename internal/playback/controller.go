// Package playback drives a briefing through its segments: loading, seeking
// across segment boundaries, speed control and heard tracking.
package playback

import (
	"cmp"
	"log/slog"
	"math"

	"github.com/oszuidwest/zwfm-briefing/internal/media"
	"github.com/oszuidwest/zwfm-briefing/internal/playlist"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// Resource is one loadable media element.
type Resource interface {
	Load(src string, durationHint float64) uint64
	Play()
	Pause()
	Seek(offset float64)
	SetRate(rate float64)
	Position() float64
	Duration() float64
}

// Tracker records heard content. MarkHeard returns the hashes that were new.
type Tracker interface {
	MarkHeard(hashes []string) []string
}

// Observer is told about listening milestones.
type Observer interface {
	SegmentHeard(seg types.Segment, hashes []string, elapsed float64)
	BriefingCompleted(status types.PlaybackStatus)
}

// Controller holds the state of one listening session. It is not safe for
// concurrent use; Session serialises access to it.
type Controller struct {
	playlist *playlist.Playlist
	res      Resource
	tracker  Tracker
	observer Observer

	state       types.PlayerState
	index       int
	gen         uint64
	metadata    bool
	canPlay     bool
	autoPlay    bool
	pendingSeek *float64
	rateIndex   int
	offset      float64
	heard       bool // current segment already marked heard
	lastErr     string
}

// NewController creates a controller and loads the first resource paused.
func NewController(pl *playlist.Playlist, res Resource, tracker Tracker, observer Observer) *Controller {
	c := &Controller{
		res:      res,
		tracker:  tracker,
		observer: observer,
		state:    types.StateIdle,
	}
	c.reset(pl)
	return c
}

// ReplaceFeed starts a new session on pl. The playback rate is kept.
func (c *Controller) ReplaceFeed(pl *playlist.Playlist) {
	if c.state == types.StatePlaying {
		c.res.Pause()
	}
	c.reset(pl)
}

func (c *Controller) reset(pl *playlist.Playlist) {
	c.playlist = pl
	c.state = types.StateIdle
	c.index = 0
	c.offset = 0
	c.autoPlay = false
	c.pendingSeek = nil
	c.lastErr = ""
	if !pl.Empty() {
		c.load(0, false)
	}
}

// State returns the current player state.
func (c *Controller) State() types.PlayerState {
	return c.state
}

// Index returns the current resource index.
func (c *Controller) Index() int {
	return c.index
}

// Rate returns the current playback rate.
func (c *Controller) Rate() float64 {
	return types.PlaybackRates[c.rateIndex]
}

// Playlist returns the active playlist.
func (c *Controller) Playlist() *playlist.Playlist {
	return c.playlist
}

// LoadSegment replaces the resource with segment i. Out-of-range indices and
// calls outside segment mode are ignored. With autoPlay, playback starts once
// the resource can play.
func (c *Controller) LoadSegment(i int, autoPlay bool) {
	if !c.playlist.SegmentMode() {
		return
	}
	if _, ok := c.playlist.Segment(i); !ok {
		return
	}
	c.load(i, autoPlay)
}

func (c *Controller) load(i int, autoPlay bool) {
	seg, ok := c.playlist.Segment(i)
	if !ok {
		return
	}
	c.index = i
	c.gen = c.res.Load(seg.File, seg.Duration)
	c.res.SetRate(c.Rate())
	c.metadata = false
	c.canPlay = false
	c.autoPlay = autoPlay
	c.pendingSeek = nil
	c.offset = 0
	c.heard = false
	c.lastErr = ""
	c.state = types.StateLoading
	slog.Debug("loading segment", "index", i, "section", seg.Section, "autoplay", autoPlay)
}

// Play starts playback, or queues it until the resource can play. A
// completed briefing starts again from the beginning.
func (c *Controller) Play() {
	if c.playlist.Empty() {
		return
	}
	if c.state == types.StateCompleted || c.state == types.StateIdle {
		c.load(0, true)
		return
	}
	if c.lastErr != "" {
		c.load(c.index, true)
		return
	}
	if !c.canPlay {
		c.autoPlay = true
		return
	}
	c.res.Play()
	c.state = types.StatePlaying
}

// Pause stops playback and cancels a queued autoplay.
func (c *Controller) Pause() {
	c.autoPlay = false
	if c.state != types.StatePlaying {
		return
	}
	c.res.Pause()
	c.offset = c.res.Position()
	c.state = types.StatePaused
}

// Toggle switches between playing and paused.
func (c *Controller) Toggle() {
	if c.state == types.StatePlaying || (c.state == types.StateLoading && c.autoPlay) {
		c.Pause()
		return
	}
	c.Play()
}

// Next marks the current segment heard and moves to the following one. In
// non-segment mode it skips forward by types.SkipStep.
func (c *Controller) Next() {
	if c.playlist.Empty() {
		return
	}
	if !c.playlist.SegmentMode() {
		c.seekLocal(c.clampToResource(c.Offset() + types.SkipStep))
		return
	}
	if c.index >= c.playlist.Len()-1 {
		return
	}
	c.markHeard()
	c.load(c.index+1, c.wantsPlayback())
}

// Previous restarts the current segment when more than
// types.RestartThreshold seconds in, otherwise loads the previous segment.
// In non-segment mode it skips back by types.SkipStep.
func (c *Controller) Previous() {
	if c.playlist.Empty() {
		return
	}
	if !c.playlist.SegmentMode() {
		c.seekLocal(max(0, c.Offset()-types.SkipStep))
		return
	}
	if c.Offset() > types.RestartThreshold || c.index == 0 {
		c.seekLocal(0)
		return
	}
	c.load(c.index-1, c.wantsPlayback())
}

// Seek moves to global show time t. A target in another segment loads that
// segment and applies the offset once its metadata is known. Outside segment
// mode t is clamped to the length of the loaded resource.
func (c *Controller) Seek(t float64) {
	if c.playlist.Empty() {
		return
	}
	if !c.playlist.SegmentMode() {
		if math.IsNaN(t) {
			t = 0
		}
		c.seekLocal(c.clampToResource(max(0, t)))
		return
	}
	i, off := c.playlist.Locate(t)
	if i != c.index {
		c.load(i, c.wantsPlayback())
		c.pendingSeek = &off
		return
	}
	c.seekLocal(off)
}

// seekLocal moves within the loaded resource, deferring until metadata is
// available. A deferred seek replaces any earlier one. Only a seek during
// playback can cross the heard threshold.
func (c *Controller) seekLocal(off float64) {
	if !c.metadata {
		c.pendingSeek = &off
		return
	}
	c.res.Seek(off)
	c.offset = c.res.Position()
	if c.state == types.StateCompleted {
		c.state = types.StatePaused
	}
	if c.state == types.StatePlaying {
		c.checkThreshold()
	}
}

// CycleSpeed advances to the next playback rate, wrapping to the first.
func (c *Controller) CycleSpeed() float64 {
	c.rateIndex = (c.rateIndex + 1) % len(types.PlaybackRates)
	c.res.SetRate(c.Rate())
	return c.Rate()
}

// HandleEvent applies a media event. Events from replaced loads are dropped.
func (c *Controller) HandleEvent(ev media.Event) {
	if ev.Gen != c.gen {
		return
	}
	switch ev.Kind {
	case media.EventLoadedMetadata:
		c.metadata = true
		if c.pendingSeek != nil {
			off := *c.pendingSeek
			c.pendingSeek = nil
			c.res.Seek(off)
			c.offset = c.res.Position()
		}
	case media.EventCanPlay:
		c.canPlay = true
		if c.autoPlay {
			c.autoPlay = false
			c.res.Play()
			c.state = types.StatePlaying
		} else if c.state == types.StateLoading {
			c.state = types.StatePaused
		}
	case media.EventTimeUpdate:
		c.offset = ev.Position
		c.checkThreshold()
	case media.EventEnded:
		c.offset = ev.Position
		c.onSegmentEnd()
	case media.EventError:
		c.lastErr = cmp.Or(util.ErrorString(ev.Err), "media error")
		c.autoPlay = false
		c.state = types.StatePaused
		slog.Warn("segment failed to load", "index", c.index, "error", ev.Err)
	}
}

// onSegmentEnd marks the segment heard and continues with the next one or
// completes the briefing.
func (c *Controller) onSegmentEnd() {
	c.state = types.StateEnding
	c.markHeard()
	if c.playlist.SegmentMode() && c.index < c.playlist.Len()-1 {
		c.load(c.index+1, true)
		return
	}
	c.state = types.StateCompleted
	slog.Info("briefing completed", "segments", c.playlist.Len(), "duration", c.Duration())
	if c.observer != nil {
		c.observer.BriefingCompleted(c.Status())
	}
}

// checkThreshold marks the segment heard once playback passes
// types.HeardThreshold of its duration.
func (c *Controller) checkThreshold() {
	if c.heard {
		return
	}
	dur := c.resourceDuration()
	if dur > 0 && c.offset > types.HeardThreshold*dur {
		c.markHeard()
	}
}

func (c *Controller) markHeard() {
	c.heard = true
	seg, ok := c.playlist.Segment(c.index)
	if !ok || len(seg.ArticleHashes) == 0 || c.tracker == nil {
		return
	}
	added := c.tracker.MarkHeard(c.playlist.Hashes(c.index))
	if len(added) > 0 && c.observer != nil {
		c.observer.SegmentHeard(seg, added, c.Elapsed())
	}
}

// resourceDuration prefers the duration reported by the loaded resource and
// falls back to the feed's value.
func (c *Controller) resourceDuration() float64 {
	if c.metadata {
		if d := c.res.Duration(); d > 0 && !math.IsNaN(d) {
			return d
		}
	}
	seg, _ := c.playlist.Segment(c.index)
	return seg.Duration
}

// clampToResource limits off to the resource length when it is known.
func (c *Controller) clampToResource(off float64) float64 {
	if d := c.resourceDuration(); d > 0 {
		return min(off, d)
	}
	return off
}

// Duration returns the length of the show. Outside segment mode this is the
// loaded resource's own length, since the feed may not carry one.
func (c *Controller) Duration() float64 {
	if c.playlist.SegmentMode() {
		return c.playlist.TotalDuration()
	}
	return c.resourceDuration()
}

func (c *Controller) wantsPlayback() bool {
	return c.state == types.StatePlaying || (c.state == types.StateLoading && c.autoPlay)
}

// Offset returns the position within the loaded resource. A queued seek
// reports its target.
func (c *Controller) Offset() float64 {
	if c.pendingSeek != nil {
		return *c.pendingSeek
	}
	if c.metadata {
		return c.res.Position()
	}
	return c.offset
}

// Elapsed returns the position in the whole show.
func (c *Controller) Elapsed() float64 {
	return c.playlist.GlobalElapsed(c.index, c.Offset())
}

// Status returns a snapshot for display.
func (c *Controller) Status() types.PlaybackStatus {
	seg, _ := c.playlist.Segment(c.index)
	return types.PlaybackStatus{
		State:        c.state,
		SegmentMode:  c.playlist.SegmentMode(),
		Index:        c.index,
		SegmentCount: c.playlist.Len(),
		Section:      seg.Section,
		Source:       seg.File,
		Offset:       c.Offset(),
		Elapsed:      c.Elapsed(),
		Duration:     c.Duration(),
		Rate:         c.Rate(),
		LastError:    c.lastErr,
		GeneratedAt:  c.playlist.GeneratedAt(),
	}
}
