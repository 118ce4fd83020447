package util

import (
	"fmt"
	"math"
	"time"
)

// RFC3339Now returns the current UTC time formatted as RFC3339.
func RFC3339Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// HumanTime returns the current local time in a readable form for e-mails.
func HumanTime() string {
	return time.Now().Format("Mon 2 Jan 2006 15:04:05")
}

// FormatHumanTime reformats an RFC3339 build timestamp for display.
// Unparseable input is returned unchanged.
func FormatHumanTime(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format("2 Jan 2006 15:04")
}

// FormatClock renders seconds as m:ss, or h:mm:ss past the hour.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
