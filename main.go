// Package main implements a briefing player that plays a generated audio
// briefing segment by segment, visualises it and tracks listener engagement.
//
// Usage:
//
//	briefing [-config path/to/config.json]
//
// If -config is not specified, the player looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/collector"
	"github.com/oszuidwest/zwfm-briefing/internal/config"
	"github.com/oszuidwest/zwfm-briefing/internal/engagement"
	"github.com/oszuidwest/zwfm-briefing/internal/media"
	"github.com/oszuidwest/zwfm-briefing/internal/notify"
	"github.com/oszuidwest/zwfm-briefing/internal/playback"
	"github.com/oszuidwest/zwfm-briefing/internal/playlist"
	"github.com/oszuidwest/zwfm-briefing/internal/store"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	db, err := store.OpenSQLite(snap.StorePath)
	if err != nil {
		slog.Error("failed to open store", "path", snap.StorePath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := engagement.New(ctx, db, collector.New(snap.FeedbackURL, snap.HeardURL))

	feed, err := playlist.LoadFeed(snap.FeedPath, snap.AudioRoot)
	if err != nil {
		slog.Warn("no briefing available yet", "path", snap.FeedPath, "error", err)
	}

	deck := media.NewDeck()
	notifier := notify.NewCompletionNotifier(ctx, cfg, tracker.Summary)
	ctl := playback.NewController(playlist.New(feed), deck, tracker, notifier)
	session := playback.NewSession(ctl, deck, playback.SessionConfig{
		Bars:        snap.Bars,
		CompactBars: snap.CompactBars,
		FPS:         snap.FPS,
		Summary:     tracker.Summary,
	})

	var wg sync.WaitGroup
	wg.Go(func() { deck.Run(ctx) })
	wg.Go(func() { session.Run(ctx) })

	if snap.WatchFeed {
		watcher, err := playlist.NewWatcher(snap.FeedPath, snap.AudioRoot, func(f types.Feed) {
			tracker.Reload()
			if err := session.ReplaceFeed(ctx, f); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("failed to load new briefing", "error", err)
			}
		})
		if err != nil {
			slog.Warn("feed watching disabled", "error", err)
		} else {
			wg.Go(func() { watcher.Run(ctx) })
		}
	}

	srv := NewServer(ctx, cfg, session, tracker)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	cancel()
	wg.Wait()
	tracker.Wait()
	notifier.Wait()

	util.SafeClose(deck, "media deck")
	util.SafeClose(db, "store")

	slog.Info("shutdown complete")
}
