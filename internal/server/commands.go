// Package server handles browser connections: the websocket upgrade and the
// commands clients send to the player.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/zwfm-briefing/internal/config"
	"github.com/oszuidwest/zwfm-briefing/internal/notify"
	"github.com/oszuidwest/zwfm-briefing/internal/playback"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

const maxListenLogEntries = 100

var (
	// ErrUnknownCommand is reported for command types the player does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrRateLimited is reported when a client sends commands too fast.
	ErrRateLimited = errors.New("too many commands")
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Player runs functions against the playback controller.
type Player interface {
	Do(ctx context.Context, fn func(*playback.Controller) error) error
}

// Engagement records listener reactions.
type Engagement interface {
	RecordClick(hash, category string) error
	RecordFeedback(hash, category string, action types.FeedbackAction) error
}

// Responder sends replies to one client.
type Responder interface {
	WriteJSON(v any) error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg          *config.Config
	player       Player
	engagement   Engagement
	testTriggers map[string]func() error
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, player Player, engagement Engagement, testTriggers map[string]func() error) *CommandHandler {
	return &CommandHandler{
		cfg:          cfg,
		player:       player,
		engagement:   engagement,
		testTriggers: testTriggers,
	}
}

// Serve reads and handles commands from conn until the connection fails.
func (h *CommandHandler) Serve(ctx context.Context, conn *Conn) {
	for {
		cmd, err := conn.ReadCommand()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}
		if !conn.Allow() {
			h.reject(conn, cmd.Type, ErrRateLimited)
			continue
		}
		h.Handle(ctx, cmd, conn)
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Rejected commands are answered with a command_result message.
func (h *CommandHandler) Handle(ctx context.Context, cmd WSCommand, conn Responder) {
	var err error
	switch cmd.Type {
	case "play":
		err = h.control(ctx, (*playback.Controller).Play)
	case "pause":
		err = h.control(ctx, (*playback.Controller).Pause)
	case "toggle":
		err = h.control(ctx, (*playback.Controller).Toggle)
	case "next":
		err = h.control(ctx, (*playback.Controller).Next)
	case "previous":
		err = h.control(ctx, (*playback.Controller).Previous)
	case "speed":
		err = h.control(ctx, func(c *playback.Controller) { c.CycleSpeed() })
	case "seek":
		err = h.handleSeek(ctx, cmd)
	case "load_segment":
		err = h.handleLoadSegment(ctx, cmd)
	case "click":
		err = h.handleClick(cmd)
	case "feedback":
		err = h.handleFeedback(cmd)
	case "test_webhook", "test_log", "test_email":
		h.handleTest(conn, cmd.Type)
	case "view_listen_log":
		h.handleViewListenLog(conn)
	default:
		slog.Warn("unknown WebSocket command type", "type", cmd.Type)
		err = ErrUnknownCommand
	}

	if err != nil {
		h.reject(conn, cmd.Type, err)
	}
}

func (h *CommandHandler) control(ctx context.Context, fn func(*playback.Controller)) error {
	return h.player.Do(ctx, func(c *playback.Controller) error {
		fn(c)
		return nil
	})
}

func (h *CommandHandler) handleSeek(ctx context.Context, cmd WSCommand) error {
	var data struct {
		Time *float64 `json:"time"`
	}
	if err := decodeData(cmd, &data); err != nil {
		return err
	}
	if data.Time == nil {
		return &util.ValidationError{Field: "time", Message: "time is required"}
	}
	return h.control(ctx, func(c *playback.Controller) { c.Seek(*data.Time) })
}

func (h *CommandHandler) handleLoadSegment(ctx context.Context, cmd WSCommand) error {
	var data struct {
		Index *int `json:"index"`
	}
	if err := decodeData(cmd, &data); err != nil {
		return err
	}
	if data.Index == nil {
		return &util.ValidationError{Field: "index", Message: "index is required"}
	}
	return h.control(ctx, func(c *playback.Controller) {
		c.LoadSegment(*data.Index, c.State() == types.StatePlaying)
	})
}

func (h *CommandHandler) handleClick(cmd WSCommand) error {
	var data struct {
		Hash     string `json:"hash"`
		Category string `json:"category"`
	}
	if err := decodeData(cmd, &data); err != nil {
		return err
	}
	return h.engagement.RecordClick(data.Hash, data.Category)
}

func (h *CommandHandler) handleFeedback(cmd WSCommand) error {
	var data struct {
		Hash     string `json:"hash"`
		Category string `json:"category"`
		Action   string `json:"action"`
	}
	if err := decodeData(cmd, &data); err != nil {
		return err
	}
	return h.engagement.RecordFeedback(data.Hash, data.Category, types.FeedbackAction(data.Action))
}

func decodeData(cmd WSCommand, v any) error {
	if len(cmd.Data) == 0 {
		return &util.ValidationError{Field: "data", Message: "data is required"}
	}
	if err := json.Unmarshal(cmd.Data, v); err != nil {
		return util.WrapError("parse command data", err)
	}
	return nil
}

func (h *CommandHandler) reject(conn Responder, command string, err error) {
	slog.Warn("command rejected", "command", command, "error", err)
	result := types.WSCommandResult{
		Type:    "command_result",
		Command: command,
		Success: false,
		Error:   err.Error(),
	}
	if wsErr := conn.WriteJSON(result); wsErr != nil {
		slog.Error("failed to send command response", "command", command, "error", wsErr)
	}
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(conn Responder, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")
	trigger, ok := h.testTriggers[testType]
	if !ok {
		slog.Warn("unknown test type", "command", testCmd)
		return
	}

	go func() {
		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := trigger(); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		if wsErr := conn.WriteJSON(result); wsErr != nil {
			slog.Error("failed to send test response", "command", testCmd, "error", wsErr)
		}
	}()
}

// handleViewListenLog reads and returns the most recent listen log entries.
func (h *CommandHandler) handleViewListenLog(conn Responder) {
	go func() {
		result := types.WSListenLogResult{
			Type:    "listen_log_result",
			Success: true,
		}

		logPath := h.cfg.Snapshot().LogPath
		if logPath == "" {
			result.Success = false
			result.Error = "Log file path not configured"
		} else if entries, err := notify.ReadListenLog(logPath, maxListenLogEntries); err != nil {
			result.Success = false
			result.Error = err.Error()
		} else {
			result.Entries = entries
			result.Path = logPath
		}

		if wsErr := conn.WriteJSON(result); wsErr != nil {
			slog.Error("failed to send listen log response", "command", "view_listen_log", "error", wsErr)
		}
	}()
}
