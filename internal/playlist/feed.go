package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// ErrEmptyFeed is returned when a feed names no playable audio at all.
var ErrEmptyFeed = errors.New("feed contains no audio")

// LoadFeed reads and parses the segment feed at path.
func LoadFeed(path, audioRoot string) (types.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Feed{}, util.WrapError("read feed", err)
	}
	return ParseFeed(data, audioRoot)
}

// ParseFeed decodes feed JSON, validates the durations and resolves relative
// file names against audioRoot. Remote URLs are kept as-is.
func ParseFeed(data []byte, audioRoot string) (types.Feed, error) {
	var feed types.Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return types.Feed{}, util.WrapError("parse feed", err)
	}

	for i := range feed.Segments {
		seg := &feed.Segments[i]
		if seg.File == "" {
			return types.Feed{}, fmt.Errorf("segment %d has no file", i)
		}
		if math.IsNaN(seg.Duration) || math.IsInf(seg.Duration, 0) || seg.Duration < 0 {
			return types.Feed{}, fmt.Errorf("segment %d has invalid duration %v", i, seg.Duration)
		}
		seg.Index = i
		seg.File = resolve(audioRoot, seg.File)
	}
	if feed.Audio != "" {
		feed.Audio = resolve(audioRoot, feed.Audio)
	}
	if feed.Duration < 0 || math.IsNaN(feed.Duration) {
		feed.Duration = 0
	}

	if len(feed.Segments) == 0 && feed.Audio == "" {
		return types.Feed{}, ErrEmptyFeed
	}
	return feed, nil
}

// IsRemote reports whether src is fetched over HTTP rather than read locally.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func resolve(root, file string) string {
	if IsRemote(file) || filepath.IsAbs(file) || root == "" {
		return file
	}
	return filepath.Join(root, file)
}
