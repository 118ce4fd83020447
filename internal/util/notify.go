package util

import "log/slog"

// LogNotifyResult runs a fire-and-forget delivery and logs its outcome.
// The error is consumed here so callers never propagate delivery failures.
func LogNotifyResult(fn func() error, notifyType string, logSuccess bool) {
	if err := fn(); err != nil {
		slog.Warn("delivery failed", "type", notifyType, "error", err)
		return
	}
	if logSuccess {
		slog.Info("delivery succeeded", "type", notifyType)
	}
}
