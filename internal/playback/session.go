package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/audio"
	"github.com/oszuidwest/zwfm-briefing/internal/media"
	"github.com/oszuidwest/zwfm-briefing/internal/playlist"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/visual"
)

// ErrStopped is returned by requests made after the session loop exited.
var ErrStopped = errors.New("playback session stopped")

const (
	subscriberBuffer = 16
	levelWindow      = 1024
)

var silentLevels = types.AudioLevels{RMS: audio.MinDB, Peak: audio.MinDB}

// Deck is a Resource that reports media events and exposes its signal.
type Deck interface {
	Resource
	Events() <-chan media.Event
	Tap() *media.Tap
}

// Update is pushed to subscribers. Exactly one of Status and Frame is set.
type Update struct {
	Status *types.PlaybackStatus
	Frame  *types.Frame
}

// SessionConfig configures the visualizer of a session.
type SessionConfig struct {
	Bars        int
	CompactBars int
	FPS         int
	Summary     func() types.EngagementSummary
}

type request struct {
	fn     func() error
	result chan error
}

// Session owns a Controller and serialises everything that touches it on a
// single goroutine: requests from clients, media events and the animation
// tick. The tick runs only while playing.
type Session struct {
	ctl     *Controller
	deck    Deck
	driver  *visual.Driver
	summary func() types.EngagementSummary
	frameIv time.Duration

	requests chan request
	done     chan struct{}

	levels     audio.LevelData
	peak       *audio.PeakHolder
	engagement types.EngagementSummary
	lastSignal visual.ProbeState

	mu       sync.RWMutex
	status   types.PlaybackStatus
	frame    types.Frame
	segments []types.Segment
	subs     map[chan Update]struct{}
}

// NewSession creates a session around ctl, which must drive deck.
func NewSession(ctl *Controller, deck Deck, cfg SessionConfig) *Session {
	fps := max(cfg.FPS, 1)
	summary := cfg.Summary
	if summary == nil {
		summary = func() types.EngagementSummary { return types.EngagementSummary{} }
	}
	return &Session{
		ctl:      ctl,
		deck:     deck,
		driver:   visual.NewDriver(cfg.Bars, cfg.CompactBars),
		summary:  summary,
		frameIv:  time.Second / time.Duration(fps),
		requests: make(chan request),
		done:     make(chan struct{}),
		peak:     audio.NewPeakHolder(),
		status:   types.PlaybackStatus{Levels: silentLevels},
		segments: ctl.Playlist().Segments(),
		subs:     make(map[chan Update]struct{}),
	}
}

// Run processes requests and events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	var ticker *time.Ticker
	var tick <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	s.publishStatus(true)
	s.publishFrame(s.driver.Frame(false, 0, nil))

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			req.result <- req.fn()
			s.publishStatus(true)
		case ev := <-s.deck.Events():
			s.ctl.HandleEvent(ev)
			s.publishStatus(ev.Kind != media.EventTimeUpdate)
		case <-tick:
			s.renderFrame()
			continue
		}

		playing := s.ctl.State() == types.StatePlaying
		switch {
		case playing && ticker == nil:
			ticker = time.NewTicker(s.frameIv)
			tick = ticker.C
		case !playing && ticker != nil:
			stopTicker()
			s.levels.Reset()
			s.peak.Reset()
			s.mu.Lock()
			s.status.Levels = silentLevels
			s.mu.Unlock()
			s.publishFrame(s.driver.Frame(false, 0, nil))
		}
	}
}

// renderFrame runs one animation tick.
func (s *Session) renderFrame() {
	tap := s.deck.Tap()
	frame := s.driver.Frame(true, s.ctl.Elapsed(), tap)
	s.publishFrame(frame)

	s.levels.Accumulate(tap.Samples(levelWindow))
	lv := audio.CalculateLevels(&s.levels)
	s.levels.Reset()
	held := s.peak.Update(lv.Peak, time.Now())

	s.mu.Lock()
	s.status.Levels = types.AudioLevels{RMS: lv.RMS, Peak: held}
	s.mu.Unlock()

	if probe := s.driver.Probe(); probe != s.lastSignal {
		s.lastSignal = probe
		slog.Info("visualizer signal", "source", probe.String())
		s.publishStatus(false)
	}
}

// Do runs fn against the controller on the session goroutine.
func (s *Session) Do(ctx context.Context, fn func(*Controller) error) error {
	return s.submit(ctx, func() error { return fn(s.ctl) })
}

// ReplaceFeed starts a new listening session on feed. The capability probe
// is reset with it.
func (s *Session) ReplaceFeed(ctx context.Context, feed types.Feed) error {
	return s.submit(ctx, func() error {
		pl := playlist.New(feed)
		s.ctl.ReplaceFeed(pl)
		s.driver.Reset()
		s.mu.Lock()
		s.segments = pl.Segments()
		s.mu.Unlock()
		s.lastSignal = visual.ProbePending
		slog.Info("new briefing loaded", "segments", len(feed.Segments), "generated_at", feed.GeneratedAt)
		return nil
	})
}

func (s *Session) submit(ctx context.Context, fn func() error) error {
	req := request{fn: fn, result: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the latest published status.
func (s *Session) Status() types.PlaybackStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Frame returns the latest rendered frame.
func (s *Session) Frame() types.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Segments returns the segments of the current feed.
func (s *Session) Segments() []types.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.segments
}

// Subscribe returns a channel of updates and a function that cancels the
// subscription. Slow subscribers miss updates rather than block the session.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}

func (s *Session) publishStatus(refreshSummary bool) {
	if refreshSummary {
		s.engagement = s.summary()
	}
	st := s.ctl.Status()
	st.Signal = s.driver.Probe().String()
	st.Engagement = s.engagement

	s.mu.Lock()
	st.Levels = s.status.Levels
	s.status = st
	s.broadcastLocked(Update{Status: &st})
	s.mu.Unlock()
}

func (s *Session) publishFrame(f types.Frame) {
	s.mu.Lock()
	s.frame = f
	s.broadcastLocked(Update{Frame: &f})
	s.mu.Unlock()
}

// broadcastLocked delivers u without blocking. Caller must hold s.mu.
func (s *Session) broadcastLocked(u Update) {
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
