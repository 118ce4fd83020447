package engagement

import (
	"errors"
	"log/slog"

	"github.com/oszuidwest/zwfm-briefing/internal/collector"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
)

// Sync starts a flush of the pending queue unless one is already running.
// A call during a flight schedules exactly one follow-up flush, which runs
// only if the current one succeeds. Failed flushes leave the queue for the
// next call; there is no retry timer.
func (t *Tracker) Sync() {
	t.mu.Lock()
	if t.syncing {
		t.again = true
		t.mu.Unlock()
		return
	}
	t.syncing = true
	t.again = false
	t.mu.Unlock()

	t.wg.Go(t.flush)
}

func (t *Tracker) flush() {
	for {
		t.mu.Lock()
		events := t.readDocument().PendingSync
		if len(events) == 0 {
			t.syncing, t.again = false, false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		err := t.collector.SubmitEvents(t.ctx, events)

		t.mu.Lock()
		if err != nil {
			t.syncing, t.again = false, false
			t.mu.Unlock()
			if errors.Is(err, collector.ErrNotConfigured) {
				slog.Debug("engagement sync skipped", "pending", len(events))
			} else {
				slog.Warn("engagement sync failed", "pending", len(events), "error", err)
			}
			return
		}

		remaining := t.removeSent(events)
		followUp := t.again
		t.again = false
		if !followUp {
			t.syncing = false
		}
		t.mu.Unlock()

		slog.Info("engagement synced", "events", len(events), "remaining", remaining)
		if !followUp {
			return
		}
	}
}

// removeSent drops the delivered events from a fresh read of the queue and
// returns how many remain. Caller must hold t.mu.
func (t *Tracker) removeSent(sent []types.SyncEvent) int {
	ids := make(map[string]struct{}, len(sent))
	for _, ev := range sent {
		ids[ev.ID] = struct{}{}
	}

	doc := t.readDocument()
	kept := doc.PendingSync[:0]
	for _, ev := range doc.PendingSync {
		if _, ok := ids[ev.ID]; !ok {
			kept = append(kept, ev)
		}
	}
	doc.PendingSync = kept
	t.writeDocument(doc)
	return len(kept)
}
