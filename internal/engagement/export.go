package engagement

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// ErrNothingToExport is returned by Export when no clicks or feedback exist.
var ErrNothingToExport = errors.New("no engagement to export")

// Export is the downloadable engagement document. The pending queue is left out.
type Export struct {
	Clicks     map[string]types.ClickRecord    `json:"clicks"`
	Feedback   map[string]types.FeedbackRecord `json:"feedback"`
	ExportedAt time.Time                       `json:"exported_at"`
}

// Export returns the clicks and feedback as indented JSON.
func (t *Tracker) Export() ([]byte, error) {
	t.mu.Lock()
	doc := t.readDocument()
	now := t.now().UTC()
	t.mu.Unlock()

	if len(doc.Clicks) == 0 && len(doc.Feedback) == 0 {
		return nil, ErrNothingToExport
	}
	data, err := json.MarshalIndent(Export{
		Clicks:     doc.Clicks,
		Feedback:   doc.Feedback,
		ExportedAt: now,
	}, "", "  ")
	if err != nil {
		return nil, util.WrapError("encode export", err)
	}
	return data, nil
}

// ExportFilename returns the download name for an export made at now.
func ExportFilename(now time.Time) string {
	return "brief-feedback-" + now.Format("2006-01-02") + ".json"
}

// Records returns the combined click and feedback view per hash, sorted by hash.
func (t *Tracker) Records() []types.EngagementRecord {
	t.mu.Lock()
	doc := t.readDocument()
	t.mu.Unlock()

	byHash := make(map[string]*types.EngagementRecord)
	get := func(hash string) *types.EngagementRecord {
		rec, ok := byHash[hash]
		if !ok {
			rec = &types.EngagementRecord{Hash: hash}
			byHash[hash] = rec
		}
		return rec
	}
	for hash, c := range doc.Clicks {
		rec := get(hash)
		rec.Category = c.Category
		rec.ClickCount = c.Count
		rec.FirstClick = c.FirstClick
		rec.LastClick = c.LastClick
	}
	for hash, f := range doc.Feedback {
		rec := get(hash)
		if rec.Category == "" {
			rec.Category = f.Category
		}
		rec.FeedbackAction = f.Action
		rec.FeedbackTimestamp = f.Timestamp
	}

	out := make([]types.EngagementRecord, 0, len(byHash))
	for _, hash := range slices.Sorted(maps.Keys(byHash)) {
		out = append(out, *byHash[hash])
	}
	return out
}

// Summary returns counters for status display and digests.
func (t *Tracker) Summary() types.EngagementSummary {
	t.mu.Lock()
	doc := t.readDocument()
	t.expireHeardLocked()
	heard := len(t.heard)
	t.mu.Unlock()

	s := types.EngagementSummary{
		Heard:   heard,
		Clicked: len(doc.Clicks),
		Pending: len(doc.PendingSync),
	}
	for _, f := range doc.Feedback {
		switch f.Action {
		case types.FeedbackLike:
			s.Likes++
		case types.FeedbackDislike:
			s.Dislikes++
		}
	}
	return s
}
