package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/collector"
	"github.com/oszuidwest/zwfm-briefing/internal/store"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
)

type fakeCollector struct {
	mu      sync.Mutex
	fail    error
	batches [][]types.SyncEvent
	heard   [][]string
	block   chan struct{} // when set, SubmitEvents waits on it
}

func (f *fakeCollector) SubmitEvents(_ context.Context, events []types.SyncEvent) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
	return f.fail
}

func (f *fakeCollector) SubmitHeard(_ context.Context, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heard = append(f.heard, hashes)
	return f.fail
}

func (f *fakeCollector) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeCollector) counts() (batches, heard int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches), len(f.heard)
}

var baseTime = time.Date(2026, 10, 16, 7, 30, 0, 0, time.UTC)

func newTracker(t *testing.T, st store.Store, c Collector, now time.Time) *Tracker {
	t.Helper()
	tr := &Tracker{
		ctx:       context.Background(),
		store:     st,
		collector: c,
		now:       func() time.Time { return now },
		heard:     make(map[string]struct{}),
	}
	var n int
	tr.newID = func() string { n++; return fmt.Sprintf("ev-%d", n) }
	tr.loadHeard()
	return tr
}

func storedDocument(t *testing.T, st store.Store) document {
	t.Helper()
	data, err := st.Get(KeyEngagement)
	if err != nil {
		t.Fatalf("read engagement: %v", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode engagement: %v", err)
	}
	return doc
}

func TestFeedbackReplacesNeverStacks(t *testing.T) {
	st := store.NewMemory()
	c := &fakeCollector{}
	tr := newTracker(t, st, c, baseTime)

	for _, action := range []types.FeedbackAction{types.FeedbackLike, types.FeedbackLike, types.FeedbackDislike} {
		if err := tr.RecordFeedback("h1", "local", action); err != nil {
			t.Fatalf("RecordFeedback(%s): %v", action, err)
		}
		tr.Wait()
	}

	doc := storedDocument(t, st)
	if len(doc.Feedback) != 1 {
		t.Fatalf("feedback entries = %d, want 1", len(doc.Feedback))
	}
	if got := doc.Feedback["h1"].Action; got != types.FeedbackDislike {
		t.Errorf("action = %q, want dislike", got)
	}
	recs := tr.Records()
	if len(recs) != 1 || recs[0].FeedbackAction != types.FeedbackDislike {
		t.Errorf("Records = %+v", recs)
	}
}

func TestRecordClick(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st, &fakeCollector{}, baseTime)

	for range 3 {
		if err := tr.RecordClick("h1", "world"); err != nil {
			t.Fatal(err)
		}
		tr.Wait()
	}
	doc := storedDocument(t, st)
	rec := doc.Clicks["h1"]
	if rec.Count != 3 || rec.Category != "world" || !rec.FirstClick.Equal(baseTime) {
		t.Errorf("click record = %+v", rec)
	}
	if len(doc.PendingSync) != 0 {
		t.Errorf("pending after successful syncs = %d", len(doc.PendingSync))
	}

	if err := tr.RecordClick("", "world"); err == nil {
		t.Error("empty hash should be rejected")
	}
	if err := tr.RecordFeedback("h1", "world", types.FeedbackNone); err == nil {
		t.Error("empty action should be rejected")
	}
}

func TestMarkHeardIdempotent(t *testing.T) {
	st := store.NewMemory()
	c := &fakeCollector{}
	tr := newTracker(t, st, c, baseTime)

	added := tr.MarkHeard([]string{"a", "b"})
	tr.Wait()
	if len(added) != 2 {
		t.Fatalf("added = %v", added)
	}
	if again := tr.MarkHeard([]string{"a", "b"}); again != nil {
		t.Errorf("second MarkHeard added %v", again)
	}
	tr.Wait()
	if _, heard := c.counts(); heard != 1 {
		t.Errorf("heard notifications = %d, want 1", heard)
	}

	added = tr.MarkHeard([]string{"b", "c"})
	tr.Wait()
	if len(added) != 1 || added[0] != "c" {
		t.Errorf("added = %v, want [c]", added)
	}
	c.mu.Lock()
	last := c.heard[len(c.heard)-1]
	c.mu.Unlock()
	if len(last) != 1 || last[0] != "c" {
		t.Errorf("notification carried %v, want only new hashes", last)
	}
	if tr.MarkHeard(nil) != nil {
		t.Error("no hashes should be a no-op")
	}
}

func TestHeardRetention(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		kept bool
	}{
		{"25h old discarded", 25 * time.Hour, false},
		{"1h old retained", time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			data, _ := json.Marshal(types.HeardSet{Hashes: []string{"a", "b"}, Timestamp: baseTime.Add(-tt.age)})
			_ = st.Set(KeyHeard, data)

			tr := newTracker(t, st, &fakeCollector{}, baseTime)
			if got := tr.IsHeard("a"); got != tt.kept {
				t.Errorf("IsHeard(a) = %v, want %v", got, tt.kept)
			}
			if _, err := st.Get(KeyHeard); errors.Is(err, store.ErrNotFound) == tt.kept {
				t.Errorf("stored heard set present = %v, want %v", err == nil, tt.kept)
			}
		})
	}
}

func TestHeardPersistsAcrossTrackers(t *testing.T) {
	st := store.NewMemory()
	first := newTracker(t, st, &fakeCollector{}, baseTime)
	first.MarkHeard([]string{"x", "y"})
	first.Wait()

	c := &fakeCollector{}
	second := newTracker(t, st, c, baseTime.Add(2*time.Hour))
	if got := second.HeardHashes(); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("HeardHashes = %v", got)
	}
	if second.MarkHeard([]string{"x"}) != nil {
		t.Error("hash heard in an earlier session was re-sent")
	}
}

func TestHeardExpiresWhileRunning(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st, &fakeCollector{}, baseTime)
	now := baseTime
	tr.now = func() time.Time { return now }

	tr.MarkHeard([]string{"monday-article"})
	now = now.Add(72 * time.Hour)
	if tr.IsHeard("monday-article") {
		t.Error("heard set older than retention still reports monday-article")
	}
	tr.MarkHeard([]string{"thursday-article"})
	tr.Wait()

	if got := tr.HeardHashes(); len(got) != 1 || got[0] != "thursday-article" {
		t.Errorf("HeardHashes = %v, want [thursday-article]", got)
	}
	var set types.HeardSet
	data, err := st.Get(KeyHeard)
	if err != nil {
		t.Fatalf("read heard set: %v", err)
	}
	if err := json.Unmarshal(data, &set); err != nil {
		t.Fatalf("decode heard set: %v", err)
	}
	if len(set.Hashes) != 1 || set.Hashes[0] != "thursday-article" || !set.Timestamp.Equal(now) {
		t.Errorf("stored heard set = %+v", set)
	}
}

func TestReloadAppliesRetention(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st, &fakeCollector{}, baseTime)
	now := baseTime
	tr.now = func() time.Time { return now }
	tr.MarkHeard([]string{"a"})
	tr.Wait()

	// Another process adds to the set in the meantime.
	data, _ := json.Marshal(types.HeardSet{Hashes: []string{"a", "b"}, Timestamp: baseTime.Add(time.Hour)})
	_ = st.Set(KeyHeard, data)

	now = baseTime.Add(2 * time.Hour)
	tr.Reload()
	if got := tr.HeardHashes(); len(got) != 2 {
		t.Errorf("after reload HeardHashes = %v, want [a b]", got)
	}

	now = baseTime.Add(26 * time.Hour)
	tr.Reload()
	if got := tr.HeardHashes(); len(got) != 0 {
		t.Errorf("expired set survived reload: %v", got)
	}
	if _, err := st.Get(KeyHeard); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expired set still stored, err = %v", err)
	}
}

type ctxCollector struct {
	mu   sync.Mutex
	errs []error
}

func (c *ctxCollector) SubmitEvents(ctx context.Context, _ []types.SyncEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, ctx.Err())
	return ctx.Err()
}

func (c *ctxCollector) SubmitHeard(ctx context.Context, _ []string) error {
	return c.SubmitEvents(ctx, nil)
}

func TestDeliveriesRunUnderLifetimeContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &ctxCollector{}
	tr := New(ctx, store.NewMemory(), c)
	cancel()

	if err := tr.RecordClick("h1", "sport"); err != nil {
		t.Fatalf("RecordClick: %v", err)
	}
	tr.MarkHeard([]string{"h1"})
	tr.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(c.errs))
	}
	for _, err := range c.errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("delivery ran with ctx err %v, want canceled", err)
		}
	}
	if len(tr.Pending()) != 1 {
		t.Error("cancelled delivery should keep the event queued")
	}
}

func TestSyncFailureRetainsQueue(t *testing.T) {
	st := store.NewMemory()
	c := &fakeCollector{fail: errors.New("connection refused")}
	tr := newTracker(t, st, c, baseTime)

	_ = tr.RecordClick("h1", "local")
	tr.Wait()
	_ = tr.RecordFeedback("h2", "sport", types.FeedbackLike)
	tr.Wait()
	if got := len(tr.Pending()); got != 2 {
		t.Fatalf("pending after failures = %d, want 2", got)
	}

	c.setFail(nil)
	_ = tr.RecordClick("h3", "local")
	tr.Wait()
	if got := len(tr.Pending()); got != 0 {
		t.Errorf("pending after success = %d, want 0", got)
	}
	c.mu.Lock()
	last := c.batches[len(c.batches)-1]
	c.mu.Unlock()
	if len(last) != 3 {
		t.Errorf("final batch size = %d, want whole queue of 3", len(last))
	}
}

func TestSyncNotConfiguredKeepsQueue(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st, collector.New("", ""), baseTime)
	_ = tr.RecordClick("h1", "local")
	tr.MarkHeard([]string{"a"})
	tr.Wait()
	if got := len(tr.Pending()); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
}

func TestEventsDuringFlightSurvive(t *testing.T) {
	st := store.NewMemory()
	c := &fakeCollector{block: make(chan struct{})}
	tr := newTracker(t, st, c, baseTime)

	_ = tr.RecordClick("h1", "local") // starts a flight that blocks
	_ = tr.RecordClick("h2", "local") // queued behind it
	close(c.block)
	tr.Wait()

	if got := len(tr.Pending()); got != 0 {
		t.Errorf("pending = %d, want 0 after follow-up flush", got)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var delivered int
	for _, b := range c.batches {
		delivered += len(b)
	}
	if delivered < 2 {
		t.Errorf("delivered %d events, want both", delivered)
	}
}

func TestCorruptStoreReadsEmpty(t *testing.T) {
	st := store.NewMemory()
	_ = st.Set(KeyEngagement, []byte("{not json"))
	_ = st.Set(KeyHeard, []byte("[]]"))

	tr := newTracker(t, st, &fakeCollector{fail: errors.New("offline")}, baseTime)
	if len(tr.HeardHashes()) != 0 {
		t.Error("corrupt heard set should read as empty")
	}
	if err := tr.RecordClick("h1", "local"); err != nil {
		t.Fatal(err)
	}
	tr.Wait()
	if doc := storedDocument(t, st); doc.Clicks["h1"].Count != 1 {
		t.Errorf("click not recorded over corrupt state: %+v", doc)
	}
}

func TestMergesExternalWrites(t *testing.T) {
	st := store.NewMemory()
	c := &fakeCollector{fail: errors.New("offline")}
	tr := newTracker(t, st, c, baseTime)
	_ = tr.RecordClick("h1", "local")
	tr.Wait()

	// Another writer adds feedback directly to the store.
	doc := storedDocument(t, st)
	doc.Feedback["ext"] = types.FeedbackRecord{Action: types.FeedbackLike, Category: "arts", Timestamp: baseTime}
	data, _ := json.Marshal(doc)
	_ = st.Set(KeyEngagement, data)

	_ = tr.RecordClick("h2", "local")
	tr.Wait()
	merged := storedDocument(t, st)
	if _, ok := merged.Feedback["ext"]; !ok {
		t.Error("external feedback lost on write")
	}
	if merged.Clicks["h1"].Count != 1 || merged.Clicks["h2"].Count != 1 {
		t.Errorf("clicks = %+v", merged.Clicks)
	}
}

type failingStore struct{}

func (failingStore) Get(string) ([]byte, error)  { return nil, errors.New("disk full") }
func (failingStore) Set(string, []byte) error    { return errors.New("disk full") }
func (failingStore) Delete(string) error         { return errors.New("disk full") }

func TestStorageErrorsSwallowed(t *testing.T) {
	c := &fakeCollector{}
	tr := newTracker(t, failingStore{}, c, baseTime)
	if err := tr.RecordClick("h1", "local"); err != nil {
		t.Errorf("RecordClick = %v, storage errors must not surface", err)
	}
	if added := tr.MarkHeard([]string{"a"}); len(added) != 1 {
		t.Errorf("MarkHeard = %v", added)
	}
	tr.Wait()
	if !tr.IsHeard("a") {
		t.Error("heard set should still track the session in memory")
	}
}
