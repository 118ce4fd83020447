package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// SendCompletedWebhook announces a briefing that was listened to the end.
func SendCompletedWebhook(ctx context.Context, webhookURL string, status types.PlaybackStatus, summary types.EngagementSummary) error {
	return sendWebhook(ctx, webhookURL, map[string]any{
		"event":        "briefing_completed",
		"generated_at": status.GeneratedAt,
		"segments":     status.SegmentCount,
		"duration":     status.Duration,
		"engagement":   summary,
		"timestamp":    util.RFC3339Now(),
	})
}

// SendTestWebhook sends a test POST request to verify webhook configuration.
func SendTestWebhook(ctx context.Context, webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(ctx, webhookURL, map[string]any{
		"event":     "test",
		"message":   "This is a test notification from the ZuidWest FM briefing player",
		"timestamp": util.RFC3339Now(),
	})
}

// SendRefreshTrigger asks the collector to generate a fresh briefing.
func SendRefreshTrigger(ctx context.Context, triggerURL, token string) error {
	if !util.IsConfigured(triggerURL) {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, triggerURL, nil)
	if err != nil {
		return util.WrapError("create trigger request", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(req, "trigger")
}

// sendWebhook sends a POST request with JSON payload to the webhook URL.
func sendWebhook(ctx context.Context, webhookURL string, payload map[string]any) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, "webhook")
}

func do(req *http.Request, name string) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return util.WrapError("send "+name+" request", err)
	}
	defer util.SafeCloseFunc(resp.Body, name+" response body")()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", name, resp.StatusCode)
	}
	return nil
}
