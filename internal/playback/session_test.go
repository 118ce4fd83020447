package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/media"
	"github.com/oszuidwest/zwfm-briefing/internal/playlist"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/visual"
)

type fakeDeck struct {
	*fakeResource
	events chan media.Event
	tap    *media.Tap
}

func (d *fakeDeck) Events() <-chan media.Event { return d.events }
func (d *fakeDeck) Tap() *media.Tap            { return d.tap }

func startSession(t *testing.T, feed types.Feed) (*Session, *fakeDeck, <-chan Update) {
	t.Helper()
	deck := &fakeDeck{
		fakeResource: &fakeResource{},
		events:       make(chan media.Event, 8),
		tap:          media.NewTap(media.DefaultTapSize),
	}
	ctl := NewController(playlist.New(feed), deck, &fakeTracker{}, &fakeObserver{})
	s := NewSession(ctl, deck, SessionConfig{
		Bars:        16,
		CompactBars: 8,
		FPS:         50,
		Summary:     func() types.EngagementSummary { return types.EngagementSummary{Heard: 3} },
	})
	updates, cancelSub := s.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancelSub()
		cancel()
		<-s.done
	})
	return s, deck, updates
}

func waitUpdate(t *testing.T, ch <-chan Update, match func(Update) bool) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatal("timed out waiting for update")
			return Update{}
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// sendEvent delivers kind for the deck's current load.
func sendEvent(t *testing.T, s *Session, deck *fakeDeck, kind media.EventKind) {
	t.Helper()
	var gen uint64
	if err := s.Do(context.Background(), func(c *Controller) error {
		gen = c.gen
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	deck.events <- media.Event{Kind: kind, Gen: gen}
}

func TestSessionPublishesInitialState(t *testing.T) {
	_, _, updates := startSession(t, scenarioFeed())

	u := waitUpdate(t, updates, func(u Update) bool { return u.Status != nil })
	if u.Status.State != types.StateLoading || u.Status.SegmentCount != 2 {
		t.Errorf("initial status = %+v", u.Status)
	}
	if u.Status.Engagement.Heard != 3 || u.Status.Signal != "pending" {
		t.Errorf("engagement=%+v signal=%q", u.Status.Engagement, u.Status.Signal)
	}
	f := waitUpdate(t, updates, func(u Update) bool { return u.Frame != nil })
	if f.Frame.Source != visual.SourceIdle || len(f.Frame.Primary) != 16 || len(f.Frame.Compact) != 8 {
		t.Errorf("initial frame = %s %d/%d", f.Frame.Source, len(f.Frame.Primary), len(f.Frame.Compact))
	}
}

func TestSessionAnimatesOnlyWhilePlaying(t *testing.T) {
	s, deck, updates := startSession(t, scenarioFeed())
	ctx := context.Background()

	if err := s.Do(ctx, func(c *Controller) error { c.Play(); return nil }); err != nil {
		t.Fatal(err)
	}
	sendEvent(t, s, deck, media.EventLoadedMetadata)
	sendEvent(t, s, deck, media.EventCanPlay)

	waitUpdate(t, updates, func(u Update) bool {
		return u.Status != nil && u.Status.State == types.StatePlaying
	})
	// An empty tap never completes the probe window, so frames are simulated.
	waitUpdate(t, updates, func(u Update) bool {
		return u.Frame != nil && u.Frame.Source == visual.SourceSimulated
	})

	if err := s.Do(ctx, func(c *Controller) error { c.Pause(); return nil }); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return s.Frame().Source == visual.SourceIdle })
	if st := s.Status(); st.State != types.StatePaused || st.Levels != silentLevels {
		t.Errorf("after pause: state=%s levels=%+v", st.State, st.Levels)
	}
}

func TestSessionReplaceFeed(t *testing.T) {
	s, _, updates := startSession(t, scenarioFeed())
	feed := types.Feed{GeneratedAt: "2026-10-16T06:00:00Z", Segments: []types.Segment{
		{File: "n0.mp3", Duration: 10}, {File: "n1.mp3", Duration: 10}, {File: "n2.mp3", Duration: 10},
	}}
	if err := s.ReplaceFeed(context.Background(), feed); err != nil {
		t.Fatal(err)
	}
	u := waitUpdate(t, updates, func(u Update) bool {
		return u.Status != nil && u.Status.GeneratedAt == feed.GeneratedAt
	})
	if u.Status.SegmentCount != 3 || u.Status.Source != "n0.mp3" || u.Status.Index != 0 {
		t.Errorf("status after replace = %+v", u.Status)
	}
}

func TestSessionDoReturnsError(t *testing.T) {
	s, _, _ := startSession(t, scenarioFeed())
	want := errors.New("rejected")
	if err := s.Do(context.Background(), func(*Controller) error { return want }); !errors.Is(err, want) {
		t.Errorf("Do = %v, want %v", err, want)
	}
}

func TestSessionStopped(t *testing.T) {
	deck := &fakeDeck{fakeResource: &fakeResource{}, events: make(chan media.Event), tap: media.NewTap(0)}
	s := NewSession(NewController(playlist.New(scenarioFeed()), deck, nil, nil), deck, SessionConfig{Bars: 8, CompactBars: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	if err := s.Do(context.Background(), func(*Controller) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after stop = %v, want ErrStopped", err)
	}
}
