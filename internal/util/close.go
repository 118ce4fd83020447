// Package util provides small helpers shared across the briefing player.
package util

import (
	"io"
	"log/slog"
)

// SafeClose closes c and logs a failure instead of returning it.
// A nil closer is ignored.
func SafeClose(c io.Closer, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("failed to close resource", "resource", name, "error", err)
	}
}

// SafeCloseFunc creates a defer-friendly closure for resource cleanup.
func SafeCloseFunc(c io.Closer, name string) func() {
	return func() {
		SafeClose(c, name)
	}
}
