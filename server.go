package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/config"
	"github.com/oszuidwest/zwfm-briefing/internal/engagement"
	"github.com/oszuidwest/zwfm-briefing/internal/notify"
	"github.com/oszuidwest/zwfm-briefing/internal/playback"
	"github.com/oszuidwest/zwfm-briefing/internal/playlist"
	"github.com/oszuidwest/zwfm-briefing/internal/server"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

const statusInterval = 3 * time.Second

// Server is an HTTP server that provides the web interface for the player.
type Server struct {
	config   *config.Config
	session  *playback.Session
	tracker  *engagement.Tracker
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer returns a new Server around a running playback session.
func NewServer(ctx context.Context, cfg *config.Config, session *playback.Session, tracker *engagement.Tracker) *Server {
	commands := server.NewCommandHandler(
		cfg,
		session,
		tracker,
		map[string]func() error{
			"webhook": func() error { return notify.SendTestWebhook(ctx, cfg.Snapshot().WebhookURL) },
			"log":     func() error { return notify.WriteTestLog(cfg.Snapshot().LogPath) },
			"email": func() error {
				snap := cfg.Snapshot()
				return notify.SendTestEmail(notify.EmailConfigFromSnapshot(&snap))
			},
		},
	)

	return &Server{
		config:   cfg,
		session:  session,
		tracker:  tracker,
		commands: commands,
		version:  NewVersionChecker(ctx),
	}
}

// handleWebSocket streams player status and visualizer frames to the client
// and feeds its commands to the session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer util.SafeCloseFunc(conn, "WebSocket connection")()

	updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		s.commands.Serve(r.Context(), conn)
		close(done)
	}()

	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	sendStatus := func(st types.PlaybackStatus) error {
		return conn.WriteJSON(map[string]any{
			"type":      "status",
			"status":    st,
			"media_url": s.mediaURL(st.Source),
			"segments":  s.session.Segments(),
			"heard":     s.tracker.HeardHashes(),
			"records":   s.tracker.Records(),
			"version":   s.version.GetInfo(),
		})
	}
	sendFrame := func(f types.Frame) error {
		return conn.WriteJSON(map[string]any{
			"type":  "frame",
			"frame": f,
		})
	}

	if err := sendStatus(s.session.Status()); err != nil {
		return
	}
	if err := sendFrame(s.session.Frame()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case u := <-updates:
			switch {
			case u.Status != nil:
				err = sendStatus(*u.Status)
			case u.Frame != nil:
				err = sendFrame(*u.Frame)
			}
			if err != nil {
				return
			}
		case <-statusTicker.C:
			if err := sendStatus(s.session.Status()); err != nil {
				return
			}
		}
	}
}

// mediaURL returns the address the browser loads src from. Local files are
// served below /audio/; sources outside the audio root are not exposed.
func (s *Server) mediaURL(src string) string {
	if src == "" || playlist.IsRemote(src) {
		return src
	}
	rel, err := filepath.Rel(s.config.AudioRoot(), src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return "/audio/" + filepath.ToSlash(rel)
}

// handleExport downloads the engagement document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := s.tracker.Export()
	if errors.Is(err, engagement.ErrNothingToExport) {
		http.Error(w, "no feedback data to export", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("export failed", "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", engagement.ExportFilename(time.Now())))
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write export", "error", err)
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// WebSocket for all real-time communication
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/export", s.handleExport)
	mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(s.config.AudioRoot()))))

	mux.HandleFunc("/", s.handleStatic)

	return mux
}

// staticFile represents an embedded static file with its content type and content.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// staticFiles maps URL paths to their corresponding static file definitions.
var staticFiles = map[string]staticFile{
	"/style.css": {
		contentType: "text/css",
		content:     styleCSS,
		name:        "style.css",
	},
	"/app.js": {
		contentType: "application/javascript",
		content:     appJS,
		name:        "app.js",
	},
}

// handleStatic serves the embedded static web interface files.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	// Handle index.html specially (requires template replacement)
	if path == "/index.html" {
		w.Header().Set("Content-Type", "text/html")
		html := strings.Replace(indexHTML, "{{VERSION}}", Version, 1)
		html = strings.ReplaceAll(html, "{{YEAR}}", fmt.Sprintf("%d", time.Now().Year()))
		if _, err := w.Write([]byte(html)); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}

	// Handle other static files via table lookup
	if file, ok := staticFiles[path]; ok {
		w.Header().Set("Content-Type", file.contentType)
		if _, err := w.Write([]byte(file.content)); err != nil {
			slog.Error("failed to write static file", "file", file.name, "error", err)
		}
		return
	}

	http.NotFound(w, r)
}

// Start begins listening and serving HTTP requests on the configured port.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.WebPort())
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
