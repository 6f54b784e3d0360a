// Package plan turns a requested chunk size into a segment duration for the
// ffmpeg segment muxer.
package plan

import (
	"fmt"
	"math"
)

const (
	// BitsPerMB converts megabytes to bits (decimal megabytes).
	BitsPerMB = 8_000_000
	// BytesPerMB converts megabytes to bytes.
	BytesPerMB = 1_000_000
	// DefaultMinSegment is the shortest segment the planner will return.
	DefaultMinSegment = 1.0
)

// Input describes the source file and the requested chunk size.
type Input struct {
	ChunkMB  float64 // requested size per part, in MB
	Duration float64 // seconds
	Bitrate  int64   // bits per second; <= 0 selects the size fallback
	Size     int64   // bytes; used only by the fallback
}

// PlanError reports inputs that cannot produce a usable segment duration.
type PlanError struct {
	Reason string
}

func (e *PlanError) Error() string {
	return "cannot plan segments: " + e.Reason
}

// SegmentSeconds computes the target duration of each part.
//
// With a bitrate the duration is chunk*8e6/bitrate. Without one it is
// duration*(chunk bytes/file bytes). Results shorter than minSegment are raised
// to minSegment. Results longer than the file are returned as is, which makes
// ffmpeg write a single part. minSegment <= 0 selects DefaultMinSegment.
func SegmentSeconds(in Input, minSegment float64) (float64, error) {
	if minSegment <= 0 {
		minSegment = DefaultMinSegment
	}
	if !(in.ChunkMB > 0) || math.IsInf(in.ChunkMB, 0) {
		return 0, &PlanError{Reason: fmt.Sprintf("chunk size must be positive, got %v", in.ChunkMB)}
	}
	if !(in.Duration > 0) || math.IsInf(in.Duration, 0) {
		return 0, &PlanError{Reason: fmt.Sprintf("could not determine duration (%v)", in.Duration)}
	}

	var seconds float64
	if in.Bitrate > 0 {
		seconds = in.ChunkMB * BitsPerMB / float64(in.Bitrate)
	} else {
		if in.Size <= 0 {
			return 0, &PlanError{Reason: "neither bitrate nor file size is available"}
		}
		seconds = in.Duration * (in.ChunkMB * BytesPerMB / float64(in.Size))
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, &PlanError{Reason: fmt.Sprintf("computed segment duration %v is unusable", seconds)}
	}

	return math.Max(seconds, minSegment), nil
}

// EstimateParts returns how many parts a split of duration into segment-long
// pieces yields. Always at least 1.
func EstimateParts(duration, segment float64) int {
	if !(duration > 0) || !(segment > 0) {
		return 1
	}
	n := int(math.Ceil(duration/segment - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// Describe renders the plan as a short status line.
func Describe(duration, segment float64) string {
	return fmt.Sprintf("~%d parts @ %.2fs/part", EstimateParts(duration, segment), segment)
}
