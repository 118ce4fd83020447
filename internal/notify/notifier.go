package notify

import (
	"context"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/config"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// CompletionNotifier reacts to listening milestones. Heard segments are
// appended to the listen log; a completed briefing is logged, announced over
// the webhook and e-mail, and after the configured delay the collector is
// asked to generate a fresh briefing.
//
// All deliveries run on their own goroutines so the playback loop never
// waits on the network.
type CompletionNotifier struct {
	// ctx is the notifier's lifetime. Deliveries run under it and outlive
	// the observer callback that started them.
	ctx     context.Context
	cfg     *config.Config
	summary func() types.EngagementSummary
	after   func(time.Duration) <-chan time.Time

	wg sync.WaitGroup

	// mu protects refreshPending
	mu             sync.Mutex
	refreshPending bool
}

// NewCompletionNotifier returns a notifier reading its targets from cfg.
// Pending refresh requests are abandoned when ctx is cancelled.
func NewCompletionNotifier(ctx context.Context, cfg *config.Config, summary func() types.EngagementSummary) *CompletionNotifier {
	if summary == nil {
		summary = func() types.EngagementSummary { return types.EngagementSummary{} }
	}
	return &CompletionNotifier{
		ctx:     ctx,
		cfg:     cfg,
		summary: summary,
		after:   time.After,
	}
}

// SegmentHeard records newly heard content in the listen log.
func (n *CompletionNotifier) SegmentHeard(seg types.Segment, hashes []string, elapsed float64) {
	cfg := n.cfg.Snapshot()
	if !cfg.HasLogPath() {
		return
	}
	n.wg.Go(func() {
		util.LogNotifyResult(
			func() error { return LogSegmentHeard(cfg.LogPath, seg.Section, hashes, elapsed) },
			"Listen log",
			false,
		)
	})
}

// BriefingCompleted fans out the completion notifications.
func (n *CompletionNotifier) BriefingCompleted(status types.PlaybackStatus) {
	cfg := n.cfg.Snapshot()
	summary := n.summary()

	if cfg.HasLogPath() {
		n.wg.Go(func() {
			util.LogNotifyResult(
				func() error { return LogBriefingCompleted(cfg.LogPath, status.Elapsed) },
				"Listen log",
				false,
			)
		})
	}
	if cfg.HasWebhook() {
		n.wg.Go(func() {
			util.LogNotifyResult(
				func() error { return SendCompletedWebhook(n.ctx, cfg.WebhookURL, status, summary) },
				"Completion webhook",
				true,
			)
		})
	}
	if cfg.HasEmail() {
		emailCfg := EmailConfigFromSnapshot(&cfg)
		n.wg.Go(func() {
			util.LogNotifyResult(
				func() error { return SendCompletionDigest(emailCfg, status, summary) },
				"Completion email",
				true,
			)
		})
	}
	if cfg.HasTrigger() {
		n.scheduleRefresh(cfg.TriggerURL, cfg.TriggerToken, cfg.RefreshDelay)
	}
}

// scheduleRefresh requests a new briefing after delay. Completions while a
// request is pending share it.
func (n *CompletionNotifier) scheduleRefresh(url, token string, delay time.Duration) {
	n.mu.Lock()
	if n.refreshPending {
		n.mu.Unlock()
		return
	}
	n.refreshPending = true
	n.mu.Unlock()

	n.wg.Go(func() {
		defer func() {
			n.mu.Lock()
			n.refreshPending = false
			n.mu.Unlock()
		}()

		select {
		case <-n.after(delay):
		case <-n.ctx.Done():
			return
		}
		util.LogNotifyResult(
			func() error { return SendRefreshTrigger(n.ctx, url, token) },
			"Refresh trigger",
			true,
		)
	})
}

// Wait blocks until all started deliveries have finished.
func (n *CompletionNotifier) Wait() {
	n.wg.Wait()
}
