// Package collector delivers engagement events and heard notifications to the
// remote collector service.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

const (
	requestTimeout       = 10 * time.Second
	maxResponseBodyBytes = 1024
)

// ErrNotConfigured is returned when the endpoint for a request is empty.
var ErrNotConfigured = errors.New("collector endpoint not configured")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector returned status %d", e.Code)
	}
	return fmt.Sprintf("collector returned status %d: %s", e.Code, e.Body)
}

// Client posts JSON payloads to the collector endpoints.
type Client struct {
	feedbackURL string
	heardURL    string
	http        *http.Client
}

// New creates a Client. Either URL may be empty to disable that channel.
func New(feedbackURL, heardURL string) *Client {
	return &Client{
		feedbackURL: feedbackURL,
		heardURL:    heardURL,
		http:        &http.Client{Timeout: requestTimeout},
	}
}

// SubmitEvents sends the whole batch of pending engagement events in one request.
func (c *Client) SubmitEvents(ctx context.Context, events []types.SyncEvent) error {
	if !util.IsConfigured(c.feedbackURL) {
		return ErrNotConfigured
	}
	return c.post(ctx, c.feedbackURL, map[string]any{"events": events})
}

// SubmitHeard reports newly heard content hashes.
func (c *Client) SubmitHeard(ctx context.Context, hashes []string) error {
	if !util.IsConfigured(c.heardURL) {
		return ErrNotConfigured
	}
	return c.post(ctx, c.heardURL, map[string]any{"heard_hashes": hashes})
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return util.WrapError("create collector request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return util.WrapError("send collector request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "collector response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
		return &StatusError{Code: resp.StatusCode, Body: string(respBytes)}
	}
	return nil
}
