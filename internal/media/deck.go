package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

const (
	// OpaqueSampleRate clocks the silent tap of sources that cannot be decoded.
	OpaqueSampleRate beep.SampleRate = 44100

	tickInterval       = 50 * time.Millisecond
	timeUpdateInterval = 0.25 // Seconds of playback between time updates
	pullChunk          = 1024
	eventBuffer        = 32
)

// ErrUnknownDuration is reported when an opaque source has no duration hint.
var ErrUnknownDuration = errors.New("duration of remote source is unknown")

// Deck is a headless media element. Local mp3 and wav files are decoded and
// their samples flow through the tap as the clock advances. Remote or
// unsupported sources play opaquely: the clock runs but the tap only sees
// silence. All methods are safe for concurrent use.
type Deck struct {
	mu sync.Mutex

	gen        uint64
	src        string
	ready      bool
	opaque     bool
	playing    bool
	rate       float64
	pos        float64
	dur        float64
	lastTick   time.Time
	lastUpdate float64
	carry      float64
	exhausted  bool

	streamer   beep.StreamSeekCloser
	sampleRate beep.SampleRate
	scratch    [][2]float64

	tap       *Tap
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// NewDeck creates an idle deck.
func NewDeck() *Deck {
	return &Deck{
		rate:    1,
		scratch: make([][2]float64, pullChunk),
		tap:     NewTap(DefaultTapSize),
		events:  make(chan Event, eventBuffer),
		closed:  make(chan struct{}),
		now:     time.Now,
	}
}

// Events returns the channel on which media events are delivered.
func (d *Deck) Events() <-chan Event {
	return d.events
}

// Tap returns the analysis tap fed by the playing resource.
func (d *Deck) Tap() *Tap {
	return d.tap
}

// Load replaces the current resource with src and starts loading it in the
// background. durationHint is used when the source cannot report its own
// length. The returned generation tags every event of this load.
func (d *Deck) Load(src string, durationHint float64) uint64 {
	d.mu.Lock()
	d.closeStreamerLocked()
	d.gen++
	gen := d.gen
	d.src = src
	d.ready = false
	d.opaque = false
	d.playing = false
	d.pos = 0
	d.dur = 0
	d.lastUpdate = 0
	d.carry = 0
	d.exhausted = false
	d.tap.SetSource(nil)
	d.mu.Unlock()

	go d.open(gen, src, durationHint)
	return gen
}

func (d *Deck) open(gen uint64, src string, durationHint float64) {
	streamer, format, opaque, err := decode(src)
	if err == nil && opaque && durationHint <= 0 {
		err = ErrUnknownDuration
	}

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		if streamer != nil {
			util.SafeClose(streamer, "stale media")
		}
		return
	}
	if err != nil {
		d.mu.Unlock()
		slog.Warn("media load failed", "src", src, "error", err)
		d.emit(Event{Kind: EventError, Gen: gen, Err: err})
		return
	}

	d.opaque = opaque
	if opaque {
		d.sampleRate = OpaqueSampleRate
		d.dur = durationHint
		d.tap.SetSource(beep.Silence(-1))
	} else {
		d.streamer = streamer
		d.sampleRate = format.SampleRate
		d.dur = format.SampleRate.D(streamer.Len()).Seconds()
		if d.dur <= 0 {
			d.dur = durationHint
		}
		d.tap.SetSource(streamer)
	}
	d.ready = true
	d.lastTick = d.now()
	dur := d.dur
	d.mu.Unlock()

	slog.Debug("media loaded", "src", src, "duration", dur, "opaque", opaque)
	d.emit(Event{Kind: EventLoadedMetadata, Gen: gen})
	d.emit(Event{Kind: EventCanPlay, Gen: gen})
}

// decode opens src for sample access. Sources that cannot be inspected
// locally are reported as opaque.
func decode(src string) (beep.StreamSeekCloser, beep.Format, bool, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return nil, beep.Format{}, true, nil
	}

	var decoder func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)
	switch strings.ToLower(filepath.Ext(src)) {
	case ".mp3":
		decoder = mp3.Decode
	case ".wav":
		decoder = func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return wav.Decode(rc)
		}
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, beep.Format{}, false, util.WrapError("open media", err)
	}
	if decoder == nil {
		util.SafeClose(f, "media file")
		return nil, beep.Format{}, true, nil
	}

	streamer, format, err := decoder(f)
	if err != nil {
		util.SafeClose(f, "media file")
		return nil, beep.Format{}, false, util.WrapError(fmt.Sprintf("decode %s", filepath.Base(src)), err)
	}
	return streamer, format, false, nil
}

// Play starts or resumes the clock. Playing an ended resource restarts it.
func (d *Deck) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing {
		return
	}
	if d.ready && d.dur > 0 && d.pos >= d.dur {
		d.seekLocked(0)
	}
	d.playing = true
	d.lastTick = d.now()
}

// Pause stops the clock at the current position.
func (d *Deck) Pause() {
	d.mu.Lock()
	evs := d.advanceLocked(d.now())
	d.playing = false
	d.mu.Unlock()
	d.emitAll(evs)
}

// Seek moves to offset seconds, clamped to the resource. It is ignored until
// metadata has loaded.
func (d *Deck) Seek(offset float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return
	}
	d.seekLocked(offset)
	d.lastTick = d.now()
}

func (d *Deck) seekLocked(offset float64) {
	if math.IsNaN(offset) {
		offset = 0
	}
	offset = max(0, offset)
	if d.dur > 0 {
		offset = min(offset, d.dur)
	}
	d.pos = offset
	d.lastUpdate = offset
	d.carry = 0
	d.exhausted = false
	if d.streamer != nil {
		p := min(d.sampleRate.N(time.Duration(offset*float64(time.Second))), d.streamer.Len())
		if err := d.streamer.Seek(p); err != nil {
			slog.Warn("media seek failed", "src", d.src, "offset", offset, "error", err)
		}
	}
}

// SetRate changes the playback speed from now on.
func (d *Deck) SetRate(rate float64) {
	if rate <= 0 || math.IsNaN(rate) {
		return
	}
	d.mu.Lock()
	evs := d.advanceLocked(d.now())
	d.rate = rate
	d.mu.Unlock()
	d.emitAll(evs)
}

// Position returns the current offset in seconds.
func (d *Deck) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

// Duration returns the resource length in seconds, or 0 before metadata.
func (d *Deck) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dur
}

// Opaque reports whether the loaded resource cannot be inspected.
func (d *Deck) Opaque() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opaque
}

// Run advances the clock until ctx is cancelled, then closes the deck.
func (d *Deck) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	defer d.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Deck) tick() {
	d.mu.Lock()
	evs := d.advanceLocked(d.now())
	d.mu.Unlock()
	d.emitAll(evs)
}

// advanceLocked moves the clock to now, pulling the matching number of
// samples through the tap. Caller must hold d.mu.
func (d *Deck) advanceLocked(now time.Time) []Event {
	elapsed := now.Sub(d.lastTick).Seconds()
	d.lastTick = now
	if !d.playing || !d.ready || elapsed <= 0 {
		return nil
	}

	step := elapsed * d.rate
	d.pos += step
	if d.dur > 0 {
		d.pos = min(d.pos, d.dur)
	}

	want := step*float64(d.sampleRate) + d.carry
	n := int(want)
	d.carry = want - float64(n)
	d.pull(n)

	if (d.dur > 0 && d.pos >= d.dur) || d.exhausted {
		d.playing = false
		d.lastUpdate = d.pos
		return []Event{
			{Kind: EventTimeUpdate, Gen: d.gen, Position: d.pos},
			{Kind: EventEnded, Gen: d.gen, Position: d.pos},
		}
	}
	if d.pos-d.lastUpdate >= timeUpdateInterval {
		d.lastUpdate = d.pos
		return []Event{{Kind: EventTimeUpdate, Gen: d.gen, Position: d.pos}}
	}
	return nil
}

// pull streams n samples through the tap. Caller must hold d.mu.
func (d *Deck) pull(n int) {
	for n > 0 && !d.exhausted {
		chunk := d.scratch[:min(n, len(d.scratch))]
		got, ok := d.tap.Stream(chunk)
		n -= got
		if !ok || got == 0 {
			d.exhausted = !d.opaque
			return
		}
	}
}

func (d *Deck) emitAll(evs []Event) {
	for _, ev := range evs {
		if ev.Kind == EventTimeUpdate {
			d.emitLossy(ev)
			continue
		}
		d.emit(ev)
	}
}

// emit delivers ev, blocking until it is consumed or the deck is closed.
func (d *Deck) emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.closed:
	}
}

// emitLossy drops ev when the consumer is behind.
func (d *Deck) emitLossy(ev Event) {
	select {
	case d.events <- ev:
	default:
	}
}

func (d *Deck) closeStreamerLocked() {
	if d.streamer != nil {
		util.SafeClose(d.streamer, "media")
		d.streamer = nil
	}
}

// Close releases the loaded resource and unblocks pending event sends.
func (d *Deck) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeStreamerLocked()
	d.ready = false
	d.playing = false
	return nil
}
