// Package engagement records clicks, feedback and heard content, persists it
// in the local store and delivers it to the remote collector.
package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-briefing/internal/collector"
	"github.com/oszuidwest/zwfm-briefing/internal/store"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// Store keys.
const (
	KeyEngagement = "brief_engagement"
	KeyHeard      = "brief_heard"
)

const maxCategoryLength = 64

// Collector delivers engagement data to the remote service.
type Collector interface {
	SubmitEvents(ctx context.Context, events []types.SyncEvent) error
	SubmitHeard(ctx context.Context, hashes []string) error
}

// document is the persisted engagement state.
type document struct {
	Clicks      map[string]types.ClickRecord    `json:"clicks"`
	Feedback    map[string]types.FeedbackRecord `json:"feedback"`
	PendingSync []types.SyncEvent               `json:"pendingSync"`
}

func emptyDocument() document {
	return document{
		Clicks:      make(map[string]types.ClickRecord),
		Feedback:    make(map[string]types.FeedbackRecord),
		PendingSync: []types.SyncEvent{},
	}
}

// Tracker owns engagement state for one device. Every write re-reads the
// store, applies the change to that snapshot and writes it back, so state
// written by other processes between reads is merged rather than lost.
//
// The heard set expires as a whole once its last write is older than
// types.HeardRetention; it is checked on every access, not only at startup.
type Tracker struct {
	// ctx is the lifetime of the tracker. Background deliveries run under
	// it and are abandoned when it is cancelled at shutdown; callers never
	// wait on them.
	ctx       context.Context
	store     store.Store
	collector Collector
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	heard   map[string]struct{}
	heardAt time.Time // timestamp of the newest heard set seen
	syncing bool
	again   bool
	wg      sync.WaitGroup
}

// New creates a tracker and loads the heard set, discarding it when it is
// older than types.HeardRetention. ctx is the tracker's lifetime and bounds
// every network delivery.
func New(ctx context.Context, st store.Store, c Collector) *Tracker {
	t := &Tracker{
		ctx:       ctx,
		store:     st,
		collector: c,
		now:       time.Now,
		newID:     uuid.NewString,
		heard:     make(map[string]struct{}),
	}
	t.loadHeard()
	return t
}

// RecordClick counts a click on hash and queues it for delivery.
func (t *Tracker) RecordClick(hash, category string) error {
	if err := validateItem(hash, category); err != nil {
		return err
	}

	t.mu.Lock()
	now := t.now().UTC()
	doc := t.readDocument()
	rec, ok := doc.Clicks[hash]
	if !ok {
		rec.FirstClick = now
	}
	rec.Category = category
	rec.Count++
	rec.LastClick = now
	doc.Clicks[hash] = rec
	doc.PendingSync = append(doc.PendingSync, types.SyncEvent{
		ID:        t.newID(),
		Type:      types.SyncClick,
		Hash:      hash,
		Category:  category,
		Timestamp: now,
	})
	t.writeDocument(doc)
	t.mu.Unlock()

	slog.Debug("click recorded", "hash", hash, "category", category, "count", rec.Count)
	t.Sync()
	return nil
}

// RecordFeedback sets the feedback for hash, replacing any earlier action.
func (t *Tracker) RecordFeedback(hash, category string, action types.FeedbackAction) error {
	if err := validateItem(hash, category); err != nil {
		return err
	}
	if !action.Valid() {
		return &util.ValidationError{Field: "action", Message: "action must be like or dislike"}
	}

	t.mu.Lock()
	now := t.now().UTC()
	doc := t.readDocument()
	doc.Feedback[hash] = types.FeedbackRecord{Action: action, Category: category, Timestamp: now}
	doc.PendingSync = append(doc.PendingSync, types.SyncEvent{
		ID:        t.newID(),
		Type:      types.SyncFeedback,
		Hash:      hash,
		Category:  category,
		Action:    action,
		Timestamp: now,
	})
	t.writeDocument(doc)
	t.mu.Unlock()

	slog.Debug("feedback recorded", "hash", hash, "action", action)
	t.Sync()
	return nil
}

// MarkHeard adds hashes to the heard set. Only hashes not heard before are
// persisted and reported; it returns them.
func (t *Tracker) MarkHeard(hashes []string) []string {
	if len(hashes) == 0 {
		return nil
	}

	t.mu.Lock()
	t.expireHeardLocked()
	t.mergeHeardLocked()
	var added []string
	for _, h := range hashes {
		if h == "" {
			continue
		}
		if _, ok := t.heard[h]; ok {
			continue
		}
		t.heard[h] = struct{}{}
		added = append(added, h)
	}
	if len(added) == 0 {
		t.mu.Unlock()
		return nil
	}
	all := make([]string, 0, len(t.heard))
	for h := range t.heard {
		all = append(all, h)
	}
	slices.Sort(all)
	t.heardAt = t.now().UTC()
	t.writeJSON(KeyHeard, types.HeardSet{Hashes: all, Timestamp: t.heardAt})
	t.mu.Unlock()

	slog.Info("content heard", "new", len(added), "total", len(all))
	t.deliver(func() error { return t.collector.SubmitHeard(t.ctx, added) }, "heard")
	return added
}

// IsHeard reports whether hash is in the heard set.
func (t *Tracker) IsHeard(hash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireHeardLocked()
	_, ok := t.heard[hash]
	return ok
}

// HeardHashes returns the heard set in sorted order.
func (t *Tracker) HeardHashes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireHeardLocked()
	out := make([]string, 0, len(t.heard))
	for h := range t.heard {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Pending returns a copy of the queued sync events.
func (t *Tracker) Pending() []types.SyncEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readDocument().PendingSync
}

// Wait blocks until in-flight deliveries finish.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Reload drops the in-memory heard set and reads it again from the store,
// applying the retention check. It is called when a new briefing starts.
func (t *Tracker) Reload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.heard)
	t.heardAt = time.Time{}
	t.mergeHeardLocked()
}

func (t *Tracker) loadHeard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mergeHeardLocked()
}

// mergeHeardLocked adds the stored heard set to memory, or deletes it when
// it has expired. Caller must hold t.mu.
func (t *Tracker) mergeHeardLocked() {
	set := t.readHeard()
	if len(set.Hashes) == 0 {
		return
	}
	if age := t.now().Sub(set.Timestamp); age > types.HeardRetention {
		slog.Info("discarding expired heard set", "hashes", len(set.Hashes), "age", age.Round(time.Minute))
		t.deleteHeardLocked()
		return
	}
	for _, h := range set.Hashes {
		t.heard[h] = struct{}{}
	}
	if set.Timestamp.After(t.heardAt) {
		t.heardAt = set.Timestamp
	}
}

// expireHeardLocked clears the in-memory heard set once its newest write is
// older than types.HeardRetention. Caller must hold t.mu.
func (t *Tracker) expireHeardLocked() {
	if t.heardAt.IsZero() {
		return
	}
	age := t.now().Sub(t.heardAt)
	if age <= types.HeardRetention {
		return
	}
	slog.Info("heard set expired", "hashes", len(t.heard), "age", age.Round(time.Minute))
	clear(t.heard)
	t.heardAt = time.Time{}
	t.deleteHeardLocked()
}

func (t *Tracker) deleteHeardLocked() {
	if err := t.store.Delete(KeyHeard); err != nil {
		slog.Warn("failed to clear heard set", "error", err)
	}
}

// readDocument returns the stored engagement document. Missing or corrupt
// content reads as empty. Caller must hold t.mu.
func (t *Tracker) readDocument() document {
	doc := emptyDocument()
	if !t.readJSON(KeyEngagement, &doc) {
		return emptyDocument()
	}
	if doc.Clicks == nil {
		doc.Clicks = make(map[string]types.ClickRecord)
	}
	if doc.Feedback == nil {
		doc.Feedback = make(map[string]types.FeedbackRecord)
	}
	if doc.PendingSync == nil {
		doc.PendingSync = []types.SyncEvent{}
	}
	return doc
}

// readHeard returns the stored heard set. Caller must hold t.mu.
func (t *Tracker) readHeard() types.HeardSet {
	var set types.HeardSet
	if !t.readJSON(KeyHeard, &set) {
		return types.HeardSet{}
	}
	return set
}

func (t *Tracker) writeDocument(doc document) {
	t.writeJSON(KeyEngagement, doc)
}

func (t *Tracker) readJSON(key string, v any) bool {
	data, err := t.store.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		slog.Warn("failed to read engagement state", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("ignoring corrupt engagement state", "key", key, "error", err)
		return false
	}
	return true
}

func (t *Tracker) writeJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to encode engagement state", "key", key, "error", err)
		return
	}
	if err := t.store.Set(key, data); err != nil {
		slog.Warn("failed to persist engagement state", "key", key, "error", err)
	}
}

// deliver runs a network call in the background. Failures are logged and
// never reach the caller.
func (t *Tracker) deliver(fn func() error, kind string) {
	t.wg.Go(func() {
		util.LogNotifyResult(func() error {
			if err := fn(); err != nil && !errors.Is(err, collector.ErrNotConfigured) {
				return err
			}
			return nil
		}, kind, false)
	})
}

func validateItem(hash, category string) error {
	if err := util.ValidateRequired("hash", hash); err != nil {
		return err
	}
	if err := util.ValidateMaxLength("category", category, maxCategoryLength); err != nil {
		return err
	}
	return nil
}
