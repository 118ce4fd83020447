package notify

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// Listen log event names.
const (
	EventSegmentHeard      = "segment_heard"
	EventBriefingCompleted = "briefing_completed"
	EventTest              = "test"
)

// LogSegmentHeard records content that crossed the heard threshold.
func LogSegmentHeard(logPath, section string, hashes []string, elapsed float64) error {
	return appendLogEntry(logPath, types.ListenLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     EventSegmentHeard,
		Section:   section,
		Hashes:    hashes,
		Elapsed:   elapsed,
	})
}

// LogBriefingCompleted records a briefing played to the end.
func LogBriefingCompleted(logPath string, elapsed float64) error {
	return appendLogEntry(logPath, types.ListenLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     EventBriefingCompleted,
		Elapsed:   elapsed,
	})
}

// WriteTestLog writes a test entry to verify log file configuration.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}
	return appendLogEntry(logPath, types.ListenLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     EventTest,
	})
}

// appendLogEntry appends a JSON log entry to the file.
func appendLogEntry(logPath string, entry types.ListenLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}
	return nil
}

// ReadListenLog returns up to maxEntries of the most recent log entries,
// newest first. A missing file yields no entries. Malformed lines are skipped.
func ReadListenLog(logPath string, maxEntries int) ([]types.ListenLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []types.ListenLogEntry{}, nil
	}
	if err != nil {
		return nil, util.WrapError("read log file", err)
	}

	entries := []types.ListenLogEntry{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry types.ListenLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, util.WrapError("scan log file", err)
	}

	entries = entries[max(0, len(entries)-maxEntries):]
	slices.Reverse(entries)
	return entries, nil
}
