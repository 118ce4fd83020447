// Package media provides the headless playback resource: it decodes segment
// audio, advances a playback clock and exposes the decoded signal through a tap.
package media

// EventKind identifies a media event.
type EventKind int

// Media events, in the order a successful load produces them.
const (
	EventLoadedMetadata EventKind = iota + 1
	EventCanPlay
	EventTimeUpdate
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoadedMetadata:
		return "loadedmetadata"
	case EventCanPlay:
		return "canplay"
	case EventTimeUpdate:
		return "timeupdate"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by a Deck. Gen identifies the load that produced it so
// consumers can drop events from a replaced resource.
type Event struct {
	Kind     EventKind
	Gen      uint64
	Position float64
	Err      error
}
