package playlist

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the feed file whenever the generator rewrites it.
type Watcher struct {
	path      string
	audioRoot string
	debounce  time.Duration
	watcher   *fsnotify.Watcher
	onChange  func(types.Feed)
}

// NewWatcher watches the directory holding path. Editors and generators
// often replace files by rename, so the directory is watched rather than the
// file itself.
func NewWatcher(path, audioRoot string, onChange func(types.Feed)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, util.WrapError("create feed watcher", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		util.SafeClose(fw, "feed watcher")
		return nil, util.WrapError("watch feed directory", err)
	}
	return &Watcher{
		path:      filepath.Clean(path),
		audioRoot: audioRoot,
		debounce:  defaultDebounce,
		watcher:   fw,
		onChange:  onChange,
	}, nil
}

// Run delivers reloaded feeds until ctx is cancelled. Feeds that fail to
// parse are logged and skipped so a half-written file never replaces a
// working session.
func (w *Watcher) Run(ctx context.Context) {
	defer util.SafeClose(w.watcher, "feed watcher")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("feed watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	feed, err := LoadFeed(w.path, w.audioRoot)
	if err != nil {
		slog.Warn("ignoring unreadable feed update", "path", w.path, "error", err)
		return
	}
	slog.Info("feed updated", "path", w.path, "segments", len(feed.Segments), "generated_at", feed.GeneratedAt)
	w.onChange(feed)
}
