package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/zwfm-briefing/internal/collector"
	"github.com/oszuidwest/zwfm-briefing/internal/config"
	"github.com/oszuidwest/zwfm-briefing/internal/engagement"
	"github.com/oszuidwest/zwfm-briefing/internal/media"
	"github.com/oszuidwest/zwfm-briefing/internal/playback"
	"github.com/oszuidwest/zwfm-briefing/internal/playlist"
	"github.com/oszuidwest/zwfm-briefing/internal/server"
	"github.com/oszuidwest/zwfm-briefing/internal/store"
)

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	tracker *engagement.Tracker
	root    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	cfg.Feed.AudioRoot = root

	feed, err := playlist.ParseFeed([]byte(`{"generated_at":"2026-10-16T06:00:00Z","segments":[
		{"section":"Local","file":"s0.mp3","duration":40,"article_hashes":["a","b"]},
		{"section":"World","file":"s1.mp3","duration":50,"article_hashes":["c"]}]}`), root)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tracker := engagement.New(ctx, store.NewMemory(), collector.New("", ""))
	deck := media.NewDeck()
	ctl := playback.NewController(playlist.New(feed), deck, tracker, nil)
	session := playback.NewSession(ctl, deck, playback.SessionConfig{Bars: 8, CompactBars: 4, FPS: 10, Summary: tracker.Summary})
	go deck.Run(ctx)
	go session.Run(ctx)

	s := &Server{
		config:   cfg,
		session:  session,
		tracker:  tracker,
		commands: server.NewCommandHandler(cfg, session, tracker, nil),
		version:  newVersionChecker("http://127.0.0.1:0/unused"),
	}
	hs := httptest.NewServer(s.SetupRoutes())
	t.Cleanup(func() {
		hs.Close()
		cancel()
		tracker.Wait()
		_ = deck.Close()
	})
	return &testEnv{srv: s, http: hs, tracker: tracker, root: root}
}

func TestWebSocketStatusAndCommands(t *testing.T) {
	env := newTestEnv(t)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.http.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	type message struct {
		Type     string `json:"type"`
		MediaURL string `json:"media_url"`
		Status   struct {
			SegmentCount int     `json:"segment_count"`
			Rate         float64 `json:"rate"`
		} `json:"status"`
		Frame struct {
			Source string `json:"source"`
		} `json:"frame"`
	}

	for {
		var m message
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for initial status: %v", err)
		}
		if m.Type == "status" && m.Status.SegmentCount == 2 {
			if m.MediaURL != "/audio/s0.mp3" {
				t.Errorf("media_url = %q", m.MediaURL)
			}
			break
		}
	}

	if err := ws.WriteJSON(server.WSCommand{Type: "speed"}); err != nil {
		t.Fatal(err)
	}
	for {
		var m message
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for rate change: %v", err)
		}
		if m.Type == "status" && m.Status.Rate == 1.25 {
			break
		}
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/export")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty export status = %d, want 404", resp.StatusCode)
	}

	if err := env.tracker.RecordClick("h1", "Local"); err != nil {
		t.Fatal(err)
	}
	resp, err = http.Get(env.http.URL + "/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "brief-feedback-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var doc engagement.Export
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc.Clicks["h1"].Count != 1 {
		t.Errorf("export = %+v", doc)
	}
}

func TestAudioAndStaticRoutes(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(filepath.Join(env.root, "s0.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path, wantType string
		wantStatus     int
	}{
		{"/", "text/html", http.StatusOK},
		{"/app.js", "application/javascript", http.StatusOK},
		{"/style.css", "text/css", http.StatusOK},
		{"/audio/s0.mp3", "", http.StatusOK},
		{"/missing.txt", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(env.http.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("%s status = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
		}
		if tt.wantType != "" && !strings.HasPrefix(resp.Header.Get("Content-Type"), tt.wantType) {
			t.Errorf("%s Content-Type = %q", tt.path, resp.Header.Get("Content-Type"))
		}
		if tt.path == "/" && strings.Contains(string(body), "{{VERSION}}") {
			t.Error("index.html version placeholder not replaced")
		}
	}
}

func TestMediaURL(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		src, want string
	}{
		{"", ""},
		{"https://cdn.example.org/brief.mp3", "https://cdn.example.org/brief.mp3"},
		{filepath.Join(env.root, "seg", "s1.mp3"), "/audio/seg/s1.mp3"},
		{filepath.Join(env.root, "..", "secret.mp3"), ""},
	}
	for _, tt := range tests {
		if got := env.srv.mediaURL(tt.src); got != tt.want {
			t.Errorf("mediaURL(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestVersionCheck(t *testing.T) {
	oldVersion := Version
	t.Cleanup(func() { Version = oldVersion })
	Version = "v1.2.0"

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua != "zwfm-briefing/v1.2.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(`{"tag_name":"v1.3.0"}`))
	}))
	defer srv.Close()

	vc := newVersionChecker(srv.URL)
	if !vc.check(context.Background()) {
		t.Fatal("first check failed")
	}
	info := vc.GetInfo()
	if info.Current != "1.2.0" || info.Latest != "1.3.0" || !info.UpdateAvail {
		t.Errorf("info = %+v", info)
	}
	if !vc.check(context.Background()) || requests.Load() != 2 {
		t.Errorf("conditional check failed, requests = %d", requests.Load())
	}
}

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.3.0", "1.2.0", true},
		{"v1.2.0", "1.2.0", false},
		{"1.10.0", "1.9.1", true},
		{"1.2.0", "1.3.0", false},
	}
	for _, tt := range tests {
		if got := isNewerVersion(tt.latest, tt.current); got != tt.want {
			t.Errorf("isNewerVersion(%q, %q) = %v", tt.latest, tt.current, got)
		}
	}
}
