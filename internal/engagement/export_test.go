package engagement

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-briefing/internal/store"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
)

func TestExport(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st, &fakeCollector{fail: errors.New("offline")}, baseTime)

	if _, err := tr.Export(); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("Export on empty = %v, want ErrNothingToExport", err)
	}

	_ = tr.RecordClick("h1", "local")
	_ = tr.RecordFeedback("h2", "sport", types.FeedbackDislike)
	tr.Wait()

	data, err := tr.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if strings.Contains(string(data), "pendingSync") {
		t.Error("export must not include the pending queue")
	}
	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exp.Clicks["h1"].Count != 1 || exp.Feedback["h2"].Action != types.FeedbackDislike {
		t.Errorf("export = %+v", exp)
	}
	if !exp.ExportedAt.Equal(baseTime) {
		t.Errorf("ExportedAt = %v", exp.ExportedAt)
	}
	if got := ExportFilename(baseTime); got != "brief-feedback-2026-10-16.json" {
		t.Errorf("ExportFilename = %q", got)
	}
}

func TestSummary(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st, &fakeCollector{fail: errors.New("offline")}, baseTime)
	_ = tr.RecordClick("h1", "local")
	_ = tr.RecordFeedback("h1", "local", types.FeedbackLike)
	_ = tr.RecordFeedback("h2", "local", types.FeedbackDislike)
	tr.MarkHeard([]string{"h1", "h3"})
	tr.Wait()

	s := tr.Summary()
	want := types.EngagementSummary{Heard: 2, Clicked: 1, Likes: 1, Dislikes: 1, Pending: 3}
	if s != want {
		t.Errorf("Summary = %+v, want %+v", s, want)
	}
}
