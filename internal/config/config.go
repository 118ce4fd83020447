// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// Configuration defaults.
const (
	DefaultWebPort             = 8080
	DefaultFeedPath            = "public/audio/segments-en.json"
	DefaultStorePath           = "data/briefing.db"
	DefaultRefreshDelaySeconds = 30
	DefaultBars                = 48
	DefaultCompactBars         = 24
	DefaultFPS                 = 30
	DefaultEmailSMTPPort       = 587
	DefaultEmailFromName       = "ZuidWest FM Briefing"
)

// WebConfig contains web server configuration.
type WebConfig struct {
	Port int `json:"port"`
}

// FeedConfig describes where the segment metadata and audio live.
type FeedConfig struct {
	Path      string `json:"path"`
	AudioRoot string `json:"audio_root,omitempty"`
	Watch     *bool  `json:"watch,omitempty"`
}

// StoreConfig contains local persistence configuration.
type StoreConfig struct {
	Path string `json:"path"`
}

// CollectorConfig contains the remote collector endpoints.
type CollectorConfig struct {
	FeedbackURL         string `json:"feedback_url,omitempty"`
	HeardURL            string `json:"heard_url,omitempty"`
	TriggerURL          string `json:"trigger_url,omitempty"`
	TriggerToken        string `json:"trigger_token,omitempty"`
	RefreshDelaySeconds int    `json:"refresh_delay_seconds,omitempty"`
}

// VisualizerConfig contains bar visualizer configuration.
type VisualizerConfig struct {
	Bars        int `json:"bars,omitempty"`
	CompactBars int `json:"compact_bars,omitempty"`
	FPS         int `json:"fps,omitempty"`
}

// EmailConfig contains email notification configuration.
type EmailConfig struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	FromName   string `json:"from_name,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Recipients string `json:"recipients,omitempty"`
}

// NotificationsConfig contains all notification configuration.
type NotificationsConfig struct {
	WebhookURL string      `json:"webhook_url,omitempty"`
	LogPath    string      `json:"log_path,omitempty"`
	Email      EmailConfig `json:"email,omitempty"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Web           WebConfig           `json:"web"`
	Feed          FeedConfig          `json:"feed"`
	Store         StoreConfig         `json:"store"`
	Collector     CollectorConfig     `json:"collector,omitempty"`
	Visualizer    VisualizerConfig    `json:"visualizer,omitempty"`
	Notifications NotificationsConfig `json:"notifications,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Web:      WebConfig{Port: DefaultWebPort},
		Feed:     FeedConfig{Path: DefaultFeedPath},
		Store:    StoreConfig{Path: DefaultStorePath},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return c.validateLocked()
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if c.Feed.Path == "" {
		c.Feed.Path = DefaultFeedPath
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
}

// validateLocked rejects values the player cannot run with. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := util.ValidateRange("web.port", c.Web.Port, 1, 65535); err != nil {
		return err
	}
	if err := util.ValidateRange("collector.refresh_delay_seconds", c.Collector.RefreshDelaySeconds, 0, 3600); err != nil {
		return err
	}
	if c.Visualizer.Bars != 0 {
		if err := util.ValidateRange("visualizer.bars", c.Visualizer.Bars, 4, 256); err != nil {
			return err
		}
	}
	if c.Visualizer.CompactBars != 0 {
		if err := util.ValidateRange("visualizer.compact_bars", c.Visualizer.CompactBars, 4, 256); err != nil {
			return err
		}
	}
	if c.Visualizer.FPS != 0 {
		if err := util.ValidateRange("visualizer.fps", c.Visualizer.FPS, 1, 60); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the configuration to file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// WebPort returns the web server port.
func (c *Config) WebPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Web.Port
}

// FeedPath returns the path of the segment metadata file.
func (c *Config) FeedPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Feed.Path
}

// AudioRoot returns the directory relative segment files resolve against.
// It defaults to the directory holding the feed file.
func (c *Config) AudioRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cmp.Or(c.Feed.AudioRoot, filepath.Dir(c.Feed.Path))
}

// WatchFeed reports whether the feed file is watched for regeneration.
func (c *Config) WatchFeed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Feed.Watch == nil || *c.Feed.Watch
}

// StorePath returns the local store database path.
func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Store.Path
}

// RefreshDelay returns the wait between completion and the refresh request.
func (c *Config) RefreshDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(cmp.Or(c.Collector.RefreshDelaySeconds, DefaultRefreshDelaySeconds)) * time.Second
}

// SetCollector updates the collector endpoints and saves the configuration.
func (c *Config) SetCollector(feedbackURL, heardURL, triggerURL, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Collector.FeedbackURL = feedbackURL
	c.Collector.HeardURL = heardURL
	c.Collector.TriggerURL = triggerURL
	c.Collector.TriggerToken = token
	return c.saveLocked()
}

// Snapshot contains a point-in-time copy of all configuration values.
// Use this instead of multiple individual getters to reduce mutex contention.
type Snapshot struct {
	WebPort int

	FeedPath  string
	AudioRoot string
	WatchFeed bool

	StorePath string

	FeedbackURL  string
	HeardURL     string
	TriggerURL   string
	TriggerToken string
	RefreshDelay time.Duration

	Bars        int
	CompactBars int
	FPS         int

	WebhookURL string
	LogPath    string

	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFromName   string
	EmailUsername   string
	EmailPassword   string
	EmailRecipients string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort: c.Web.Port,

		FeedPath:  c.Feed.Path,
		AudioRoot: cmp.Or(c.Feed.AudioRoot, filepath.Dir(c.Feed.Path)),
		WatchFeed: c.Feed.Watch == nil || *c.Feed.Watch,

		StorePath: c.Store.Path,

		FeedbackURL:  c.Collector.FeedbackURL,
		HeardURL:     c.Collector.HeardURL,
		TriggerURL:   c.Collector.TriggerURL,
		TriggerToken: c.Collector.TriggerToken,
		RefreshDelay: time.Duration(cmp.Or(c.Collector.RefreshDelaySeconds, DefaultRefreshDelaySeconds)) * time.Second,

		Bars:        cmp.Or(c.Visualizer.Bars, DefaultBars),
		CompactBars: cmp.Or(c.Visualizer.CompactBars, DefaultCompactBars),
		FPS:         cmp.Or(c.Visualizer.FPS, DefaultFPS),

		WebhookURL: c.Notifications.WebhookURL,
		LogPath:    c.Notifications.LogPath,

		EmailSMTPHost:   c.Notifications.Email.Host,
		EmailSMTPPort:   cmp.Or(c.Notifications.Email.Port, DefaultEmailSMTPPort),
		EmailFromName:   cmp.Or(c.Notifications.Email.FromName, DefaultEmailFromName),
		EmailUsername:   c.Notifications.Email.Username,
		EmailPassword:   c.Notifications.Email.Password,
		EmailRecipients: c.Notifications.Email.Recipients,
	}
}

// HasWebhook returns true if a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasEmail returns true if email notifications are configured.
func (s *Snapshot) HasEmail() bool {
	return util.IsConfigured(s.EmailSMTPHost, s.EmailRecipients)
}

// HasLogPath returns true if a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasTrigger returns true if a refresh trigger endpoint is configured.
func (s *Snapshot) HasTrigger() bool {
	return s.TriggerURL != ""
}
