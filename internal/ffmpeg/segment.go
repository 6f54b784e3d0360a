// Package ffmpeg builds the stream-copy segmentation command and parses the
// text ffmpeg writes while it runs.
package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultExt is used when neither the pattern nor the upload has an extension.
const DefaultExt = ".mp4"

// patternRegex accepts exactly one integer verb (%d, %3d, %03d) and no path separators.
var patternRegex = regexp.MustCompile(`^[^%/\\]*%0?[0-9]{0,2}d[^%/\\]*$`)

// SegmentCommand describes one segment-muxer invocation.
type SegmentCommand struct {
	Input          string
	OutputDir      string
	Pattern        string  // file name pattern inside OutputDir, e.g. part%03d.mp4
	SegmentSeconds float64 // target duration per part
}

// BuildArgs constructs the ffmpeg arguments.
// Streams are copied, never re-encoded, so cuts land on the nearest keyframe.
func (s *SegmentCommand) BuildArgs() []string {
	return []string{
		"-hide_banner",
		"-nostats",
		"-loglevel", "error",
		"-i", s.Input,
		"-c", "copy", // Copy streams without re-encoding
		"-map", "0", // Map all streams
		"-f", "segment", // Segment muxer
		"-segment_time", strconv.FormatFloat(s.SegmentSeconds, 'f', 3, 64),
		"-reset_timestamps", "1", // Each part starts at t=0
		"-progress", "pipe:1",
		s.OutputPattern(),
	}
}

// OutputPattern returns the full output path pattern.
func (s *SegmentCommand) OutputPattern() string {
	return filepath.Join(s.OutputDir, s.Pattern)
}

// DryRun returns the command string without executing.
func (s *SegmentCommand) DryRun(bin string) string {
	if bin == "" {
		bin = "ffmpeg"
	}
	return fmt.Sprintf("%s %s", bin, strings.Join(s.BuildArgs(), " "))
}

// SegmentIndex estimates which part the muxer is writing once outTime
// seconds of output exist. Cuts land on keyframes, so parts drift from the
// planned boundaries; total > 0 caps the index at the last planned part.
func SegmentIndex(outTime, segmentSeconds, total float64) int {
	if !(segmentSeconds > 0) || !(outTime > 0) {
		return 0
	}
	idx := int(math.Ceil(outTime/segmentSeconds-1e-9)) - 1
	if total > 0 {
		if last := int(math.Ceil(total/segmentSeconds-1e-9)) - 1; idx > last {
			idx = last
		}
	}
	return max(idx, 0)
}

// PartName returns the file name pattern produces for part index.
func PartName(pattern string, index int) string {
	return fmt.Sprintf(pattern, index)
}

// DefaultPattern returns part%03d with the given extension.
func DefaultPattern(ext string) string {
	return "part%03d" + normalizeExt(ext)
}

// ValidatePattern checks a user-supplied file name pattern. It must be a bare
// file name containing exactly one integer verb.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.New("pattern is empty")
	}
	if pattern != filepath.Base(pattern) || strings.ContainsAny(pattern, `/\`) {
		return fmt.Errorf("pattern %q must be a file name without directories", pattern)
	}
	if !patternRegex.MatchString(pattern) {
		return fmt.Errorf("pattern %q must contain exactly one integer placeholder such as %%03d", pattern)
	}
	return nil
}

// EnsureExtension appends ext when the pattern has none.
func EnsureExtension(pattern, ext string) string {
	if filepath.Ext(pattern) != "" {
		return pattern
	}
	return pattern + normalizeExt(ext)
}

// MatchPattern reports whether name could have been produced by pattern.
func MatchPattern(pattern, name string) bool {
	idx := strings.IndexByte(pattern, '%')
	if idx < 0 {
		return false
	}
	prefix := pattern[:idx]
	rest := pattern[idx+1:]
	end := strings.IndexByte(rest, 'd')
	if end < 0 {
		return false
	}
	suffix := rest[end+1:]

	if len(name) <= len(prefix)+len(suffix) {
		return false
	}
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return false
	}
	digits := name[len(prefix) : len(name)-len(suffix)]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeExt(ext string) string {
	if ext == "" {
		return DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}
