// Package types provides shared type definitions used across the briefing player.
package types

import "time"

// PlayerState represents the current state of the playback controller.
type PlayerState string

const (
	// StateIdle indicates no segment is loaded or playback has not started.
	StateIdle PlayerState = "idle"
	// StateLoading indicates a segment resource is being loaded.
	StateLoading PlayerState = "loading"
	// StatePlaying indicates audio is advancing.
	StatePlaying PlayerState = "playing"
	// StatePaused indicates a loaded segment is paused.
	StatePaused PlayerState = "paused"
	// StateEnding indicates the current segment has finished and the next step is being decided.
	StateEnding PlayerState = "ending"
	// StateCompleted indicates the final segment ended with nothing left to play.
	StateCompleted PlayerState = "completed"
)

// Playback settings.
const (
	SkipStep          = 30.0 // Seconds skipped in non-segment mode
	RestartThreshold  = 3.0  // Seconds into a segment after which previous restarts it
	HeardThreshold    = 0.8  // Fraction of a segment that counts as heard
	HeardRetention    = 24 * time.Hour
	DefaultRefreshLag = 30 * time.Second // Delay before requesting a fresh briefing
)

// PlaybackRates is the ordered set of speeds cycled by the speed control.
var PlaybackRates = []float64{1, 1.25, 1.5, 1.75, 2}

// Segment is one independently loadable audio resource of the briefing.
type Segment struct {
	Index         int      `json:"index"`
	Section       string   `json:"section"`
	File          string   `json:"file"`
	Duration      float64  `json:"duration"`
	ArticleHashes []string `json:"article_hashes,omitempty"`
}

// Feed is the segment metadata written by the briefing generator.
type Feed struct {
	GeneratedAt string    `json:"generated_at,omitempty"`
	Audio       string    `json:"audio,omitempty"`    // Combined single resource
	Duration    float64   `json:"duration,omitempty"` // Duration of Audio, if known
	Segments    []Segment `json:"segments"`
}

// FeedbackAction is an explicit reaction to a content item.
type FeedbackAction string

const (
	FeedbackNone    FeedbackAction = ""
	FeedbackLike    FeedbackAction = "like"
	FeedbackDislike FeedbackAction = "dislike"
)

// Valid reports whether the action is one a listener can select.
func (a FeedbackAction) Valid() bool {
	return a == FeedbackLike || a == FeedbackDislike
}

// ClickRecord is the per-hash click entry of the engagement document.
type ClickRecord struct {
	Category   string    `json:"category"`
	Count      int       `json:"count"`
	FirstClick time.Time `json:"firstClick"`
	LastClick  time.Time `json:"lastClick"`
}

// FeedbackRecord is the per-hash feedback entry of the engagement document.
type FeedbackRecord struct {
	Action    FeedbackAction `json:"action"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
}

// EngagementRecord is the combined view of clicks and feedback for one hash.
type EngagementRecord struct {
	Hash              string         `json:"hash"`
	Category          string         `json:"category"`
	ClickCount        int            `json:"click_count"`
	FirstClick        time.Time      `json:"first_click,omitzero"`
	LastClick         time.Time      `json:"last_click,omitzero"`
	FeedbackAction    FeedbackAction `json:"feedback_action,omitzero"`
	FeedbackTimestamp time.Time      `json:"feedback_timestamp,omitzero"`
}

// SyncEventType distinguishes queued engagement events.
type SyncEventType string

const (
	SyncClick    SyncEventType = "click"
	SyncFeedback SyncEventType = "feedback"
)

// SyncEvent is one engagement event waiting for delivery to the collector.
type SyncEvent struct {
	ID        string         `json:"id"`
	Type      SyncEventType  `json:"type"`
	Hash      string         `json:"hash"`
	Category  string         `json:"category"`
	Action    FeedbackAction `json:"action,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// HeardSet is the persisted set of content items that have been listened to.
type HeardSet struct {
	Hashes    []string  `json:"hashes"`
	Timestamp time.Time `json:"timestamp"`
}

// Bar is one rendered bar of the visualizer.
type Bar struct {
	Height  float64 `json:"h"` // Pixels
	Opacity float64 `json:"o"`
}

// Frame holds the bars for both display contexts.
type Frame struct {
	Primary []Bar  `json:"primary"`
	Compact []Bar  `json:"compact"`
	Source  string `json:"source"` // "signal", "simulated" or "idle"
}

// AudioLevels contains current audio level measurements of the playing segment.
type AudioLevels struct {
	RMS  float64 `json:"rms"`  // RMS level in dB (-60 to 0)
	Peak float64 `json:"peak"` // Held peak level in dB
}

// PlaybackStatus is a snapshot of the controller for display.
type PlaybackStatus struct {
	State        PlayerState `json:"state"`
	SegmentMode  bool        `json:"segment_mode"`
	Index        int         `json:"index"`
	SegmentCount int         `json:"segment_count"`
	Section      string      `json:"section,omitzero"`
	Source       string      `json:"source,omitzero"` // Resource the client should mirror
	Offset       float64     `json:"offset"`          // Seconds into the loaded resource
	Elapsed      float64     `json:"elapsed"`         // Seconds into the whole show
	Duration     float64     `json:"duration"`
	Rate         float64     `json:"rate"`
	Signal       string      `json:"signal"` // "pending", "real" or "fallback"
	Levels       AudioLevels `json:"levels"`
	LastError    string      `json:"last_error,omitzero"`
	GeneratedAt  string      `json:"generated_at,omitzero"`

	Engagement EngagementSummary `json:"engagement"`
}

// EngagementSummary contains counters for display and digests.
type EngagementSummary struct {
	Heard    int `json:"heard"`
	Clicked  int `json:"clicked"`
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
	Pending  int `json:"pending"`
}

// ListenLogEntry is one line of the JSONL listen log.
type ListenLogEntry struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Section   string   `json:"section,omitempty"`
	Hashes    []string `json:"hashes,omitempty"`
	Elapsed   float64  `json:"elapsed,omitempty"`
}

// WSListenLogResult is sent to the client with recent listen log entries.
type WSListenLogResult struct {
	Type    string           `json:"type"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Entries []ListenLogEntry `json:"entries,omitempty"`
	Path    string           `json:"path,omitempty"`
}

// WSTestResult is sent to the client after a notification test.
type WSTestResult struct {
	Type     string `json:"type"`
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// WSCommandResult reports a rejected websocket command to the client.
type WSCommandResult struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// VersionInfo contains version information for the frontend.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
}
