// Package probe extracts container duration, size and bitrate from media files
// using the ffprobe command-line tool.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Result holds the container-level numbers needed to plan a split.
type Result struct {
	Duration float64 // seconds, always > 0
	Bitrate  int64   // bits per second, 0 when the container does not report one
	Size     int64   // bytes
}

// ProbeError reports that a file could not be analyzed.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("could not analyze video %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ffprobeOutput represents the raw JSON output from ffprobe.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// runFunc executes the probe tool and returns its stdout.
type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Prober runs ffprobe against uploaded files.
type Prober struct {
	bin string
	run runFunc
}

// New creates a Prober using the given ffprobe binary (name or path).
func New(bin string) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin, run: execRun}
}

func execRun(ctx context.Context, bin string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%s not found: please install ffmpeg: %w", bin, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s failed: %w (output: %s)", bin, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s failed: %w", bin, err)
	}
	return output, nil
}

// Probe analyzes a media file.
//
// -v error: only real errors on stderr
// -show_entries format=...: just the three container fields
// -of json: machine-parsable output
func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	if path == "" {
		return nil, &ProbeError{Path: path, Err: errors.New("source path cannot be empty")}
	}

	output, err := p.run(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration,size,bit_rate",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	result, err := ParseOutput(output)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	if result.Size <= 0 {
		if info, statErr := os.Stat(path); statErr == nil {
			result.Size = info.Size()
		}
	}

	return result, nil
}

// ParseOutput decodes ffprobe's JSON format section.
// Duration is mandatory; bitrate and size may be "N/A" or missing.
func ParseOutput(output []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe JSON output: %w", err)
	}

	if raw.Format.Duration == "" || raw.Format.Duration == "N/A" {
		return nil, errors.New("duration not available in format metadata")
	}
	duration, err := strconv.ParseFloat(raw.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration '%s': %w", raw.Format.Duration, err)
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("unusable duration %v", duration)
	}

	return &Result{
		Duration: duration,
		Bitrate:  parseOptionalInt(raw.Format.BitRate),
		Size:     parseOptionalInt(raw.Format.Size),
	}, nil
}

// parseOptionalInt returns 0 for empty, "N/A" or malformed values.
func parseOptionalInt(s string) int64 {
	if s == "" || s == "N/A" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
